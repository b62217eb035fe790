package wells

import "fmt"

// WellType is the production category assigned to each well.
type WellType string

const (
	Inactive       WellType = "Inactive"
	CoalBedMethane WellType = "Coal Bed Methane"
	HeavyOil       WellType = "Heavy Oil"
	LightOil       WellType = "Light Oil"
	WetGas         WellType = "Wet Gas"
	DryGas         WellType = "Dry Gas"
)

// GOR ceilings (MCF/bbl) for the oil and wet gas categories.
const (
	HeavyOilMaxGOR = 0.3
	LightOilMaxGOR = 100
	WetGasMaxGOR   = 1000
)

// WellTypes lists every category in ladder order.
func WellTypes() []WellType {
	return []WellType{Inactive, CoalBedMethane, HeavyOil, LightOil, WetGas, DryGas}
}

// ClassifyWell walks the ladder and returns the first matching category. NaN
// GOR fails every threshold and falls through to DryGas.
func ClassifyWell(boe, oil, gas, gor float64) WellType {
	switch {
	case boe == 0:
		return Inactive
	case oil == 0 && gas > 0:
		return CoalBedMethane
	case gor <= HeavyOilMaxGOR:
		return HeavyOil
	case gor <= LightOilMaxGOR:
		return LightOil
	case gor <= WetGasMaxGOR:
		return WetGas
	default:
		return DryGas
	}
}

// classifyMacro is ClassifyWell as a DuckDB macro. DuckDB orders NaN above
// every number, so the gas test excludes NaN explicitly; the GOR tests already
// fail for NaN as they do in Go.
func classifyMacro() string {
	return fmt.Sprintf(`CREATE OR REPLACE MACRO classify_well(boe, oil, gas, gor) AS CASE
	WHEN boe IS NULL OR oil IS NULL OR gas IS NULL OR gor IS NULL THEN NULL
	WHEN boe = 0 THEN '%s'
	WHEN oil = 0 AND NOT isnan(CAST(gas AS DOUBLE)) AND gas > 0 THEN '%s'
	WHEN gor <= CAST(%g AS DOUBLE) THEN '%s'
	WHEN gor <= CAST(%g AS DOUBLE) THEN '%s'
	WHEN gor <= CAST(%g AS DOUBLE) THEN '%s'
	ELSE '%s'
END`, Inactive, CoalBedMethane, HeavyOilMaxGOR, HeavyOil, float64(LightOilMaxGOR), LightOil, float64(WetGasMaxGOR), WetGas, DryGas)
}

// HasProductionDays reports whether a Prod_days cell is non-null and nonzero.
func HasProductionDays(days any) bool {
	switch v := days.(type) {
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// hasProductionDaysMacro is HasProductionDays in SQL. NaN compares unequal to
// zero in both.
const hasProductionDaysMacro = `CREATE OR REPLACE MACRO has_production_days(days) AS
	days IS NOT NULL AND days <> 0`
