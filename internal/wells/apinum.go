package wells

import "strings"

// StatePrefix is Colorado's API state code.
const StatePrefix = "05"

// APINum formats the ten-digit API well number plus sidetrack:
// 05-CCC-SSSSS-TT. Parts longer than their width are kept whole.
func APINum(county, seq, sidetrack string) string {
	return strings.Join([]string{StatePrefix, zfill(county, 3), zfill(seq, 5), zfill(sidetrack, 2)}, "-")
}

// zfill left-pads s with zeros to width, after any leading sign.
func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", width-len(sign)-len(s)) + s
}

// apiPartMacro is zfill in SQL: the part is cast to text, nulls stay null.
const apiPartMacro = `CREATE OR REPLACE MACRO api_part(part, width) AS CASE
	WHEN length(CAST(part AS VARCHAR)) >= width THEN CAST(part AS VARCHAR)
	WHEN left(CAST(part AS VARCHAR), 1) IN ('-', '+')
		THEN left(CAST(part AS VARCHAR), 1) || lpad(substr(CAST(part AS VARCHAR), 2), width - 1, '0')
	ELSE lpad(CAST(part AS VARCHAR), width, '0')
END`
