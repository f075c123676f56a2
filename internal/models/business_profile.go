package models

// BusinessProfile is shown on every bill.
type BusinessProfile struct {
	UserName      string `json:"user_name" mapstructure:"user_name" validate:"required,min=2"`
	BusinessName  string `json:"business_name" mapstructure:"business_name" validate:"required"`
	ContactNumber string `json:"contact_number" mapstructure:"contact_number" validate:"required,len=10,number"`
	PaymentInfo   string `json:"payment_info" mapstructure:"payment_info" validate:"required"`
}
