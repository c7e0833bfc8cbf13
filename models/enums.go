package models

import (
	"encoding/json"
	"errors"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft        PurchaseOrderStatus = "draft"
	PurchaseOrderStatusSent         PurchaseOrderStatus = "sent"
	PurchaseOrderStatusAcknowledged PurchaseOrderStatus = "acknowledged"
	PurchaseOrderStatusPartial      PurchaseOrderStatus = "partial"
	PurchaseOrderStatusFulfilled    PurchaseOrderStatus = "fulfilled"
	PurchaseOrderStatusClosed       PurchaseOrderStatus = "closed"
	PurchaseOrderStatusCancelled    PurchaseOrderStatus = "cancelled"
)

func (t PurchaseOrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *PurchaseOrderStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("purchase order status must be string")
	}
	switch PurchaseOrderStatus(str) {
	case PurchaseOrderStatusDraft, PurchaseOrderStatusSent, PurchaseOrderStatusAcknowledged,
		PurchaseOrderStatusPartial, PurchaseOrderStatusFulfilled, PurchaseOrderStatusClosed,
		PurchaseOrderStatusCancelled:
		*t = PurchaseOrderStatus(str)
	default:
		return errors.New("invalid purchase order status")
	}
	return nil
}

type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusPartial  DeliveryStatus = "partial"
	DeliveryStatusComplete DeliveryStatus = "complete"
)

func (t DeliveryStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *DeliveryStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("delivery status must be string")
	}
	switch DeliveryStatus(str) {
	case DeliveryStatusPending, DeliveryStatusPartial, DeliveryStatusComplete:
		*t = DeliveryStatus(str)
	default:
		return errors.New("invalid delivery status")
	}
	return nil
}

type MatchStatus string

const (
	MatchStatusUnmatched       MatchStatus = "unmatched"
	MatchStatusMatched         MatchStatus = "matched"
	MatchStatusPriceVariance   MatchStatus = "price_variance"
	MatchStatusQtyVariance     MatchStatus = "qty_variance"
	MatchStatusTaxVariance     MatchStatus = "tax_variance"
	MatchStatusFreightVariance MatchStatus = "freight_variance"
	MatchStatusMissingPo       MatchStatus = "missing_po"
)

func (t MatchStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *MatchStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("match status must be string")
	}
	switch MatchStatus(str) {
	case MatchStatusUnmatched, MatchStatusMatched, MatchStatusPriceVariance,
		MatchStatusQtyVariance, MatchStatusTaxVariance, MatchStatusFreightVariance,
		MatchStatusMissingPo:
		*t = MatchStatus(str)
	default:
		return errors.New("invalid match status")
	}
	return nil
}

// ExceptionType is the closed set of three-way-match exception kinds.
// Priority order (structurally worst first) is fixed in MatchExceptionPriority.
type ExceptionType string

const (
	ExceptionTypeMissingPo       ExceptionType = "missing_po"
	ExceptionTypeQtyVariance     ExceptionType = "qty_variance"
	ExceptionTypePriceVariance   ExceptionType = "price_variance"
	ExceptionTypeTaxVariance     ExceptionType = "tax_variance"
	ExceptionTypeFreightVariance ExceptionType = "freight_variance"
)

// MatchExceptionPriority resolves the headline matchStatus when several
// exceptions fire: a missing linkage outranks any data variance.
var MatchExceptionPriority = []ExceptionType{
	ExceptionTypeMissingPo,
	ExceptionTypeQtyVariance,
	ExceptionTypePriceVariance,
	ExceptionTypeTaxVariance,
	ExceptionTypeFreightVariance,
}

func (t ExceptionType) MatchStatus() MatchStatus {
	switch t {
	case ExceptionTypeMissingPo:
		return MatchStatusMissingPo
	case ExceptionTypeQtyVariance:
		return MatchStatusQtyVariance
	case ExceptionTypePriceVariance:
		return MatchStatusPriceVariance
	case ExceptionTypeTaxVariance:
		return MatchStatusTaxVariance
	case ExceptionTypeFreightVariance:
		return MatchStatusFreightVariance
	}
	return MatchStatusUnmatched
}

func (t ExceptionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *ExceptionType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("exception type must be string")
	}
	switch ExceptionType(str) {
	case ExceptionTypeMissingPo, ExceptionTypeQtyVariance, ExceptionTypePriceVariance,
		ExceptionTypeTaxVariance, ExceptionTypeFreightVariance:
		*t = ExceptionType(str)
	default:
		return errors.New("invalid exception type")
	}
	return nil
}

// ExceptionSeverity is informational only. A 3-way match failure is a warning
// the business can override, never a hard lock.
type ExceptionSeverity string

const (
	ExceptionSeverityInfo    ExceptionSeverity = "info"
	ExceptionSeverityWarning ExceptionSeverity = "warning"
)

func (t ExceptionSeverity) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *ExceptionSeverity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("exception severity must be string")
	}
	switch ExceptionSeverity(str) {
	case ExceptionSeverityInfo, ExceptionSeverityWarning:
		*t = ExceptionSeverity(str)
	default:
		return errors.New("invalid exception severity")
	}
	return nil
}

type ImportRunStatus string

const (
	ImportRunStatusPending  ImportRunStatus = "pending"
	ImportRunStatusReview   ImportRunStatus = "review"
	ImportRunStatusApproved ImportRunStatus = "approved"
	ImportRunStatusRejected ImportRunStatus = "rejected"
)

func (t ImportRunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *ImportRunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("import run status must be string")
	}
	switch ImportRunStatus(str) {
	case ImportRunStatusPending, ImportRunStatusReview, ImportRunStatusApproved, ImportRunStatusRejected:
		*t = ImportRunStatus(str)
	default:
		return errors.New("invalid import run status")
	}
	return nil
}

// ImportErrorCode is the closed set of hard per-line problems. A line with
// any error is invalid; suggestions never affect validity.
type ImportErrorCode string

const (
	ImportErrorMissingField    ImportErrorCode = "missing_field"
	ImportErrorNonNumericQty   ImportErrorCode = "non_numeric_qty"
	ImportErrorNegativeQty     ImportErrorCode = "negative_qty"
	ImportErrorUnknownUnit     ImportErrorCode = "unknown_unit"
	ImportErrorUnknownCostCode ImportErrorCode = "unknown_cost_code"
)

type SuggestionKind string

const (
	SuggestionKindCostCode SuggestionKind = "cost_code"
	SuggestionKindCategory SuggestionKind = "category"
)

type BudgetEntryType string

const (
	BudgetEntryTypeAllocation BudgetEntryType = "allocation"
	BudgetEntryTypeCommitment BudgetEntryType = "commitment"
	BudgetEntryTypeInvoice    BudgetEntryType = "invoice"
	BudgetEntryTypeReversal   BudgetEntryType = "reversal"
)

func (t BudgetEntryType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}

func (t *BudgetEntryType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("budget entry type must be string")
	}
	switch BudgetEntryType(str) {
	case BudgetEntryTypeAllocation, BudgetEntryTypeCommitment, BudgetEntryTypeInvoice, BudgetEntryTypeReversal:
		*t = BudgetEntryType(str)
	default:
		return errors.New("invalid budget entry type")
	}
	return nil
}
