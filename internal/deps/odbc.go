package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ODBCInstaller is the unixODBC tool that lists registered drivers.
const ODBCInstaller = "odbcinst"

// Requirements lists the programs the status command reports on.
func Requirements() []Requirement {
	return []Requirement{
		{
			Name:        "unixODBC",
			Command:     ODBCInstaller,
			Description: "Driver manager used to open Access databases",
			Optional:    true,
		},
	}
}

// CheckODBCDriver asks the driver manager whether driver is registered.
// Braces around the name, as used in connection strings, are ignored.
func CheckODBCDriver(ctx context.Context, command, driver string) Status {
	name := strings.Trim(strings.TrimSpace(driver), "{}")
	result := Status{
		Name:        "Access ODBC driver",
		Command:     strings.TrimSpace(command),
		Description: name,
	}
	if found := lookup(Requirement{Command: result.Command}); !found.Available {
		result.Detail = found.Detail
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, result.Command, "-q", "-d").Output()
	if err != nil {
		result.Detail = fmt.Sprintf("%s -q -d: %v", result.Command, err)
		return result
	}
	for _, line := range strings.Split(string(out), "\n") {
		registered := strings.Trim(strings.TrimSpace(line), "[]")
		if strings.EqualFold(registered, name) {
			result.Available = true
			return result
		}
	}
	result.Detail = fmt.Sprintf("driver %q is not registered", name)
	return result
}
