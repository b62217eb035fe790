// Package accessdb reads ECMC Access databases over ODBC into frames.
package accessdb
