package config

import (
	"strconv"
	"strings"
)

// ArchiveName is the zip file name published for a report year.
func (f Fetch) ArchiveName(year int) string {
	template := f.FilenameTemplate
	if override, ok := f.YearOverrides[strconv.Itoa(year)]; ok {
		template = override
	}
	return strings.ReplaceAll(template, YearPlaceholder, strconv.Itoa(year)) + ".zip"
}

// ArchiveURL joins the base URL and archive name, escaping spaces the way the
// ECMC download server expects.
func (f Fetch) ArchiveURL(year int) string {
	base := strings.Trim(f.BaseURL, "/")
	return strings.ReplaceAll(base+"/"+f.ArchiveName(year), " ", "%20")
}
