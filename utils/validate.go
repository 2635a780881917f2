package utils

import (
	"regexp"
)

var orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateOrderID 订单号只允许字母数字和 . _ -
func ValidateOrderID(orderID string) bool {
	return orderID != "" && orderIDPattern.MatchString(orderID)
}
