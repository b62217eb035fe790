// Package wells aggregates ECMC annual production records into one row per
// well, classifies each well by output and gas/oil ratio, and joins the
// result with well completion details.
package wells
