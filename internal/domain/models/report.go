package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecordSales aggregates confirmed orders of one record over a period.
type RecordSales struct {
	RecordID primitive.ObjectID `bson:"_id" json:"recordId"`
	Orders   int                `bson:"orders" json:"orders"`
	Units    int                `bson:"units" json:"units"`
	Revenue  float64            `bson:"revenue" json:"revenue"`
}

// SalesReport is the daily sales ledger exported to the spreadsheet.
type SalesReport struct {
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Lines   []RecordSales `json:"lines"`
	Orders  int           `json:"orders"`
	Units   int           `json:"units"`
	Revenue float64       `json:"revenue"`
}
