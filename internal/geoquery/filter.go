// Package geoquery builds the geospatial match predicate shared by every
// read path. The output is a SQL fragment plus ordered arguments, rendered
// against a FieldMap so the same builder serves trucks and truck requests.
package geoquery

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Params are the optional query-string filters accepted by all read paths.
type Params struct {
	AssetType  string
	PartnerID  string
	CustomerID string
	Status     string
	UserType   string
	Country    string
	Tracked    string
	Live       string
}

// FieldMap maps logical filter fields to SQL expressions for a target table.
// Empty expressions mark fields the table does not support.
type FieldMap struct {
	Lat string
	Lng string

	AssetType      string
	PartnerID      string
	CustomerID     string
	OverviewStatus string
	UserType       string
	Country        string
	LastConnection string
}

// TruckFields filters the trucks table on its last known location.
var TruckFields = FieldMap{
	Lat:            "last_lat",
	Lng:            "last_lng",
	AssetType:      "asset_class->>'type'",
	PartnerID:      "partner_id",
	CustomerID:     "(trip_detail->>'customerId')::BIGINT",
	OverviewStatus: "trip_detail->>'overviewStatus'",
	UserType:       "user_type",
	Country:        "country",
	LastConnection: "last_connection_time",
}

// OrderFields filters the truck_requests table on its pickup location.
var OrderFields = FieldMap{
	Lat:        "pickup_lat",
	Lng:        "pickup_lng",
	AssetType:  "asset_class->>'type'",
	CustomerID: "customer_id",
}

const liveWindow = 30 * time.Minute

// Filter is a composable conjunction of SQL conditions. Placeholders are
// written as '?' and renumbered by Where.
type Filter struct {
	conds []string
	args  []any
}

// Build translates query params into a Filter. Present free-text fields
// become case-insensitive substring matches; partner/customer ids must be
// integers and are rejected otherwise. The coordinate-existence clause is
// always present unless tracked == "false".
func Build(p Params, fields FieldMap) (*Filter, error) {
	f := &Filter{}

	// Untracked search opts out of the geolocation constraint entirely.
	if p.Tracked != "false" {
		f.And(fields.Lat+" IS NOT NULL AND "+fields.Lng+" IS NOT NULL")
		f.And("(" + fields.Lat + " > 0 OR " + fields.Lng + " > 0)")
	}

	if p.AssetType != "" && fields.AssetType != "" {
		f.And(fields.AssetType+" ILIKE ?", like(p.AssetType))
	}

	if p.PartnerID != "" && fields.PartnerID != "" {
		id, err := strconv.ParseInt(p.PartnerID, 10, 64)
		if err != nil {
			return nil, errors.Errorf("partnerId must be numeric, got %q", p.PartnerID)
		}
		f.And(fields.PartnerID+" = ?", id)
	}

	if p.CustomerID != "" && fields.CustomerID != "" {
		id, err := strconv.ParseInt(p.CustomerID, 10, 64)
		if err != nil {
			return nil, errors.Errorf("customerId must be numeric, got %q", p.CustomerID)
		}
		f.And(fields.CustomerID+" = ?", id)
	}

	if p.Status != "" && fields.OverviewStatus != "" {
		f.And(fields.OverviewStatus+" ILIKE ?", like(p.Status))
	}

	if p.UserType != "" && fields.UserType != "" {
		f.And(fields.UserType+" ILIKE ?", like(p.UserType))
	}

	if p.Country != "" && fields.Country != "" {
		f.And(fields.Country+" ILIKE ?", like(p.Country))
	}

	if p.Live == "true" && fields.LastConnection != "" {
		f.And(fields.LastConnection+" >= ?", time.Now().UTC().Add(-liveWindow))
	}

	return f, nil
}

// And appends one condition. Use '?' for each argument placeholder.
func (f *Filter) And(expr string, args ...any) *Filter {
	f.conds = append(f.conds, expr)
	f.args = append(f.args, args...)
	return f
}

// Where renders the conjunction with placeholders renumbered from start
// ($start, $start+1, ...) and returns the matching argument slice.
func (f *Filter) Where(start int) (string, []any) {
	if len(f.conds) == 0 {
		return "TRUE", nil
	}

	var b strings.Builder
	n := start
	for i, c := range f.conds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("(")
		for _, r := range c {
			if r == '?' {
				b.WriteString("$" + strconv.Itoa(n))
				n++
				continue
			}
			b.WriteRune(r)
		}
		b.WriteString(")")
	}
	return b.String(), f.args
}

// NumArgs reports how many placeholders the filter consumes.
func (f *Filter) NumArgs() int { return len(f.args) }

func like(s string) string {
	return "%" + s + "%"
}
