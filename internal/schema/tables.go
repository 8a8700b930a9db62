package schema

// Built-in output tables.
const (
	CustomerTable = "customer"
	CampaignTable = "campaign"
	reportPrefix  = "report-"
)

// Primary keys of the built-in tables.
var (
	CustomerPrimaryKey = []string{"id"}
	CampaignPrimaryKey = []string{"customerId", "id"}
)

// ReportTable names the table a custom report is written to.
func ReportTable(name string) string {
	return reportPrefix + name
}

// CustomerSchema is the static column list of the customer table. The manager
// flag is read for filtering only and never written.
func CustomerSchema() ColumnSchema {
	return StaticSchema("customerClient",
		Field("id"),
		Field("descriptiveName"),
		Field("currencyCode"),
		Field("timeZone"),
	)
}

// CampaignSchema is the static column list of the campaign table, led by the
// owning account.
func CampaignSchema(customerID string) ColumnSchema {
	return StaticSchema("campaign",
		Field("id"),
		Field("name"),
		Field("status"),
		Field("servingStatus"),
		Field("adServingOptimizationStatus"),
		Field("advertisingChannelType"),
		Field("startDate"),
		Field("endDate"),
	).WithConstant("customerId", customerID)
}
