package validation

import (
	"net/http"

	"storefront/internal/stock"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// CheckoutRequest is the body of POST /api/orders/checkout.
type CheckoutRequest struct {
	DocumentType   string       `json:"document_type" validate:"required,max=10"`
	DocumentNumber string       `json:"document_number" validate:"required,max=30"`
	FullName       string       `json:"full_name" validate:"required,max=160"`
	Email          string       `json:"email" validate:"omitempty,email,max=254"`
	Phone          string       `json:"phone" validate:"omitempty,max=30"`
	CityCode       string       `json:"city_code" validate:"required,max=20"`
	Address        string       `json:"address" validate:"required,max=255"`
	Notes          string       `json:"notes" validate:"omitempty,max=2000"`
	PaymentMethod  string       `json:"payment_method" validate:"omitempty,oneof=transfer cash_on_delivery"`
	Items          []stock.Line `json:"items" validate:"required,min=1,dive"`
}

// StockValidateRequest is the body of POST /api/orders/stock-validate.
type StockValidateRequest struct {
	Items []stock.Line `json:"items" validate:"required,min=1,dive"`
}

type AddItemRequest struct {
	VariantID uint  `json:"variant_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// UpdateItemRequest sets an absolute quantity; zero removes the line.
type UpdateItemRequest struct {
	Quantity int64 `json:"quantity" validate:"gte=0"`
}

type ProductRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Slug     string `json:"slug" validate:"omitempty,max=220"`
	Price    int64  `json:"price" validate:"gt=0"`
	IsActive *bool  `json:"is_active"`
}

type VariantRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=generic size color"`
	Value    string `json:"value" validate:"required,max=20"`
	Color    string `json:"color" validate:"omitempty,max=30"`
	Stock    int64  `json:"stock" validate:"gte=0"`
	IsActive *bool  `json:"is_active"`
}

// StockAdjustRequest is a signed restock/correction.
type StockAdjustRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

// New returns a validator for the request types above.
func New() *validatorv10.Validate {
	return validatorv10.New()
}

// BindAndValidate binds the JSON body into out and validates it.
// On failure it writes a 400 response and returns the error so the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid request body: " + err.Error()})
		return err
	}
	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":   400,
			"msg":    "validation failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

// BoolOr dereferences an optional flag.
func BoolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
