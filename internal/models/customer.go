package models

// CustomerStatus says which roster file a customer lives in.
type CustomerStatus string

const (
	CustomerActive  CustomerStatus = "Active"
	CustomerDeleted CustomerStatus = "Deleted"
)

// DefaultCluster is assigned to every new customer.
const DefaultCluster = "Default"

// CustomerIDPrefix precedes the numeric part of every customer id (C_1, C_2, ...).
const CustomerIDPrefix = "C_"

type Customer struct {
	SNo     int            `json:"s_no"`
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Phone   string         `json:"phone"`
	Address string         `json:"address"`
	Cluster string         `json:"cluster"`
	Status  CustomerStatus `json:"status"`
}

// CustomerInput is the validated body of add and edit.
type CustomerInput struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required,len=10,number"`
	Address string `json:"address" validate:"required"`
}

// DeleteCustomersRequest deletes a batch of customers in one undoable step.
type DeleteCustomersRequest struct {
	IDs []string `json:"ids"`
}
