package models

// TransactionStatus is the lifecycle state of an STK push payment.
type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// TransactionFailureReason is set once, together with the failed status.
type TransactionFailureReason string

const (
	FailureReasonMpesaCancelledOrFailed   TransactionFailureReason = "mpesa_transaction_cancelled_or_failed"
	FailureReasonBlockchainTransferFailed TransactionFailureReason = "blockchain_transfer_failed"
)

// MpesaMetadata holds the correlation identifiers returned by the Daraja
// STK push initiation call. MerchantRequestID is the join key the callback
// uses to find the transaction again.
type MpesaMetadata struct {
	MerchantRequestID   string `gorm:"column:merchant_request_id;index" json:"MerchantRequestID"`
	CheckoutRequestID   string `gorm:"column:checkout_request_id" json:"CheckoutRequestID"`
	ResponseCode        string `gorm:"column:response_code" json:"ResponseCode"`
	ResponseDescription string `gorm:"column:response_description" json:"ResponseDescription"`
	CustomerMessage     string `gorm:"column:customer_message" json:"CustomerMessage"`
	PhoneNumber         string `gorm:"column:phone_number" json:"PhoneNumber"`
}

// Transaction records a single STK push payment attempt. It is created in
// processing state and moves exactly once to completed or failed.
type Transaction struct {
	BaseModel
	Amount        float64                  `json:"amount"`
	Status        TransactionStatus        `gorm:"default:processing;index" json:"status"`
	MpesaCode     string                   `gorm:"column:mpesa_code" json:"mpesa_code"`
	FailureReason TransactionFailureReason `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	MpesaMetadata MpesaMetadata            `gorm:"embedded" json:"mpesa_metadata"`
}
