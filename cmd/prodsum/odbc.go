//go:build !noodbc

package main

// Registers the "odbc" database/sql driver used by the convert stage.
import _ "github.com/alexbrainman/odbc"
