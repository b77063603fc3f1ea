// Package provider classifies billing export files by their header shape.
package provider

import "strings"

type Provider string

const (
	AWS     Provider = "aws"
	Azure   Provider = "azure"
	GCP     Provider = "gcp"
	Generic Provider = "generic"
)

// Detect classifies a billing export by its raw CSV header row. Vendors are
// tested in a fixed priority order; the first match wins and an unknown shape
// falls back to Generic.
func Detect(headers []string) Provider {
	lowered := make([]string, 0, len(headers))
	for _, h := range headers {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(h)))
	}

	for _, h := range lowered {
		if strings.HasPrefix(h, "lineitem/") || strings.HasPrefix(h, "line_item_") {
			return AWS
		}
	}
	for _, h := range lowered {
		if h == "subscriptionid" || h == "subscriptionguid" || h == "metercategory" || h == "meter_category" {
			return Azure
		}
	}
	for _, h := range lowered {
		if h == "project.id" || h == "project_id" || h == "billing_account_id" {
			return GCP
		}
	}
	return Generic
}
