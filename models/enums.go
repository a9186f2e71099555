package models

import "errors"

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusSent      PurchaseOrderStatus = "Sent"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusPartial   PurchaseOrderStatus = "Partial"
	PurchaseOrderStatusComplete  PurchaseOrderStatus = "Complete"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

func (s PurchaseOrderStatus) Valid() bool {
	switch s {
	case PurchaseOrderStatusDraft,
		PurchaseOrderStatusSent,
		PurchaseOrderStatusConfirmed,
		PurchaseOrderStatusPartial,
		PurchaseOrderStatusComplete,
		PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

func ParsePurchaseOrderStatus(s string) (PurchaseOrderStatus, error) {
	status := PurchaseOrderStatus(s)
	if !status.Valid() {
		return "", errors.New("invalid purchase order status")
	}
	return status, nil
}

type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "Active"
	BatchStatusDepleted BatchStatus = "Depleted"
	BatchStatusExpired  BatchStatus = "Expired"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusActive, BatchStatusDepleted, BatchStatusExpired:
		return true
	}
	return false
}

// ExpiryType distinguishes hard use-by dates (DLC) from best-before
// dates (DLUO). None means the batch does not track expiry.
type ExpiryType string

const (
	ExpiryTypeNone ExpiryType = "None"
	ExpiryTypeDLC  ExpiryType = "DLC"
	ExpiryTypeDLUO ExpiryType = "DLUO"
)

func (t ExpiryType) Valid() bool {
	switch t {
	case ExpiryTypeNone, ExpiryTypeDLC, ExpiryTypeDLUO:
		return true
	}
	return false
}
