package provider

// Field is one column of the normalized billing line item schema.
type Field string

const (
	FieldAccountID            Field = "billing_account_id"
	FieldServiceName          Field = "service_name"
	FieldRegionCode           Field = "region_code"
	FieldResourceID           Field = "resource_id"
	FieldSKUID                Field = "sku_id"
	FieldCommitmentDiscountID Field = "commitment_discount_id"
	FieldBilledCost           Field = "billed_cost"
	FieldConsumedQuantity     Field = "consumed_quantity"
	FieldChargePeriodStart    Field = "charge_period_start"
	FieldChargePeriodEnd      Field = "charge_period_end"
	FieldChargeDescription    Field = "charge_description"
	FieldChargeCategory       Field = "charge_category"
	FieldCurrency             Field = "currency"
	FieldTags                 Field = "tags"
)

// Fields lists the catalog in mapping order.
var Fields = []Field{
	FieldAccountID,
	FieldServiceName,
	FieldRegionCode,
	FieldResourceID,
	FieldSKUID,
	FieldCommitmentDiscountID,
	FieldBilledCost,
	FieldConsumedQuantity,
	FieldChargePeriodStart,
	FieldChargePeriodEnd,
	FieldChargeDescription,
	FieldChargeCategory,
	FieldCurrency,
	FieldTags,
}

// aliases are the well-known source column names per field, used by the
// suggestion scorer. Keys are normalized (lower case, separators stripped).
var aliases = map[Field][]string{
	FieldAccountID:            {"lineitemusageaccountid", "usageaccountid", "subscriptionid", "subscriptionguid", "billingaccountid", "accountid", "accountnumber"},
	FieldServiceName:          {"lineitemproductcode", "productcode", "productname", "metercategory", "servicedescription", "servicename", "service"},
	FieldRegionCode:           {"productregion", "resourcelocation", "location", "regioncode", "region", "availabilityzone"},
	FieldResourceID:           {"lineitemresourceid", "resourceid", "instanceid", "resourcename", "resourceuri"},
	FieldSKUID:                {"productsku", "skuid", "meterid", "sku", "ratecode"},
	FieldCommitmentDiscountID: {"reservationarn", "savingsplanarn", "reservationid", "commitmentdiscountid", "commitmentid"},
	FieldBilledCost:           {"lineitemunblendedcost", "unblendedcost", "costinbillingcurrency", "pretaxcost", "billedcost", "cost", "amount"},
	FieldConsumedQuantity:     {"lineitemusageamount", "usageamount", "usagequantity", "quantity", "consumedquantity", "usage"},
	FieldChargePeriodStart:    {"lineitemusagestartdate", "usagestartdate", "usagestart", "usagedatetime", "chargeperiodstart", "startdate", "date"},
	FieldChargePeriodEnd:      {"lineitemusageenddate", "usageenddate", "usageend", "chargeperiodend", "enddate"},
	FieldChargeDescription:    {"lineitemlineitemdescription", "lineitemdescription", "metername", "description", "chargedescription", "skudescription"},
	FieldChargeCategory:       {"lineitemlineitemtype", "lineitemtype", "chargetype", "chargecategory", "costtype"},
	FieldCurrency:             {"lineitemcurrencycode", "currencycode", "billingcurrency", "currency"},
	FieldTags:                 {"resourcetags", "tags", "labels"},
}

// Aliases returns the known source-column aliases for a field.
func Aliases(f Field) []string {
	return aliases[f]
}
