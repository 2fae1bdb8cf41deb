package redis

import "fmt"

// ConfirmRateKey 确认付款接口按订单限流的键。
func ConfirmRateKey(orderID uint) string {
	return fmt.Sprintf("storefront:rate:confirm:order:%d", orderID)
}

// ConfirmRateIPKey 无法解析订单号时按 IP 降级限流。
func ConfirmRateIPKey(ip string) string {
	return fmt.Sprintf("storefront:rate:confirm:ip:%s", ip)
}

// EventClaimKey 标记某个事件是否已被某个消费者认领发送。
func EventClaimKey(eventID string) string {
	return fmt.Sprintf("storefront:event:claim:%s", eventID)
}

// DeliveryStateKey 存储订单通知的最近一次投递状态（sent/failed）。
func DeliveryStateKey(orderID uint) string {
	return fmt.Sprintf("storefront:notify:order:%d", orderID)
}
