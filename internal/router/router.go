package router

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/customer"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/stock"
	"storefront/internal/validation"
	"storefront/pkg/logging"
	rediskey "storefront/pkg/redis"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	rd "github.com/redis/go-redis/v9"
)

// Deps 是路由需要的全部依赖，由 cmd/server 组装。Metrics 可为 nil。
type Deps struct {
	Orders    *order.Service
	Catalog   *catalog.Service
	Stock     *stock.Validator
	Metrics   *metrics.Metrics
	Redis     *rd.Client
	Validator *validatorv10.Validate
	Config    config.AppConfig
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	v := d.Validator
	if v == nil {
		v = validation.New()
	}
	admin := middleware.AdminToken(d.Config.AdminToken)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Catalog
	r.GET("/api/products", listProducts(d.Catalog))
	r.POST("/api/products", admin, createProduct(d.Catalog, v))
	r.POST("/api/products/:id/variants", admin, addVariant(d.Catalog, v))
	r.POST("/api/variants/:id/stock", admin, adjustStock(d.Catalog, v))
	r.GET("/api/variants/sellable", sellableVariants(d.Catalog))

	// Orders
	r.POST("/api/orders/checkout", checkout(d.Orders, v))
	r.POST("/api/orders/stock-validate", validateStock(d.Stock, v))
	r.GET("/api/orders/shipping-quote", shippingQuote(d.Orders))
	r.GET("/api/orders/:id", getOrder(d.Orders))
	r.POST("/api/orders/:id/items", addItem(d.Orders, v))
	r.PUT("/api/orders/:id/items/:variant_id", updateItem(d.Orders, v))
	r.DELETE("/api/orders/:id/items/:variant_id", removeItem(d.Orders))
	r.POST("/api/orders/:id/cancel", cancelOrder(d.Orders))
	r.POST("/api/orders/:id/confirm-payment",
		admin,
		middleware.RedisRateLimit(d.Redis, d.Config.ConfirmRateLimit, d.Config.ConfirmRateWindow),
		confirmPayment(d.Orders))
	r.GET("/api/orders/:id/notification", notificationState(d.Redis))
}

// parseID 解析路径中的正整数 ID，失败时直接写 400。
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// writeError 把领域错误映射为 HTTP 状态码；基础设施错误一律 500，不暴露细节。
func writeError(c *gin.Context, err error) {
	var ve *stock.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":     422,
			"msg":      ve.Error(),
			"failures": ve.Failures,
		})
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.Is(err, order.ErrTerminalState),
		errors.Is(err, order.ErrInvalidState),
		errors.Is(err, order.ErrOrderNotEditable):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": err.Error()})
	case order.IsBusiness(err),
		errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrInactiveVariant),
		errors.Is(err, stock.ErrUnknownVariant),
		errors.Is(err, model.ErrNegativeStock):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": 422, "msg": err.Error()})
	default:
		logging.Error(logging.Fields{Service: "http", Step: c.FullPath()}, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
	}
}

func listProducts(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("all") != "true"
		list, err := svc.ListProducts(c.Request.Context(), activeOnly)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createProduct(svc *catalog.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.ProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), catalog.ProductInput{
			Name:     req.Name,
			Slug:     req.Slug,
			Price:    req.Price,
			IsActive: validation.BoolOr(req.IsActive, true),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func addVariant(svc *catalog.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		productID, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req validation.VariantRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		variant, err := svc.AddVariant(c.Request.Context(), productID, catalog.VariantInput{
			Kind:     req.Kind,
			Value:    req.Value,
			Color:    req.Color,
			Stock:    req.Stock,
			IsActive: validation.BoolOr(req.IsActive, true),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": variant})
	}
}

// adjustStock 管理员补货/盘点修正，库存永远不会被改成负数。
func adjustStock(svc *catalog.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		variantID, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req validation.StockAdjustRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		variant, err := svc.AdjustStock(c.Request.Context(), variantID, req.Delta)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": variant})
	}
}

func sellableVariants(svc *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.SellableVariants(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func checkout(svc *order.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		o, err := svc.Checkout(c.Request.Context(), order.CheckoutInput{
			Customer: customer.Identity{
				DocumentType:   req.DocumentType,
				DocumentNumber: req.DocumentNumber,
				FullName:       req.FullName,
				Email:          req.Email,
				Phone:          req.Phone,
			},
			CityCode:      req.CityCode,
			Address:       req.Address,
			Notes:         req.Notes,
			PaymentMethod: req.PaymentMethod,
			Lines:         req.Items,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

// validateStock 默认只给提示（200）；?strict=true 时库存不满足返回 422。
func validateStock(validator *stock.Validator, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.StockValidateRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		strict := c.Query("strict") == "true"
		report, err := validator.ValidateStock(c.Request.Context(), req.Items, strict)
		var ve *stock.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"code": 422, "msg": ve.Error(), "data": report})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": report})
	}
}

func shippingQuote(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		subtotal, err := strconv.ParseInt(c.Query("subtotal"), 10, 64)
		if err != nil || subtotal < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid subtotal"})
			return
		}
		city := c.Query("city_code")
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{
			"city_code":     city,
			"subtotal":      subtotal,
			"shipping_cost": svc.ShippingQuote(subtotal, city),
		}})
	}
}

func getOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		o, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

func addItem(svc *order.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		var req validation.AddItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		o, err := svc.AddItem(c.Request.Context(), id, req.VariantID, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

func updateItem(svc *order.Service, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		variantID, ok := parseID(c, "variant_id")
		if !ok {
			return
		}
		var req validation.UpdateItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		o, err := svc.UpdateItemQuantity(c.Request.Context(), id, variantID, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

func removeItem(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		variantID, ok := parseID(c, "variant_id")
		if !ok {
			return
		}
		o, err := svc.RemoveItem(c.Request.Context(), id, variantID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

func cancelOrder(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		o, err := svc.Cancel(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": o})
	}
}

// confirmPayment 确认付款并扣减库存；重复确认返回 200 + already_confirmed。
// 正确性完全由数据库事务与行锁保证，限流只是挡重复点击。
func confirmPayment(svc *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		res, err := svc.ConfirmPayment(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": res})
	}
}

// notificationState 查询付款通知的投递状态（仅 stream 模式下由 mailer 写入）。
func notificationState(rdb *rd.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}
		st, found, err := rediskey.GetDeliveryState(c.Request.Context(), rdb, id)
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"order_id": id, "status": "pending"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": st})
	}
}
