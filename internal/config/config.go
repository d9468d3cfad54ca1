// Package config loads the kernel's startup configuration and sets up
// its logger. Grounded on utils.CargarConfiguracion[T]'s generic
// JSON-into-caller-type decode and utils.InicializarLogger's
// level-from-string slog setup, with environment-variable overrides in
// the style of the victoriasolyedid pack's VEnvKernel helpers.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/oscore/mipskernel/utils"
)

// Kernel is the kernel binary's startup configuration (§6): which
// executable to run as the root process, its arguments, the physical
// memory size, and the process class to instantiate.
type Kernel struct {
	ExecutableName string   `json:"executable_name"`
	Args           []string `json:"args"`
	PageSize       int      `json:"page_size"`
	NumPhysPages   int      `json:"num_phys_pages"`
	ProcessClass   string   `json:"process_class"`
	LogLevel       string   `json:"log_level"`
}

// defaults mirror the original's constants: a modest fixed physical
// memory and the one process class this core ships.
func defaults() Kernel {
	return Kernel{
		PageSize:     256,
		NumPhysPages: 64,
		ProcessClass: "base",
		LogLevel:     "info",
	}
}

// Load decodes path via utils.CargarConfiguracion, fills in whatever
// fields the file left at their zero value with defaults(), then
// applies environment overrides.
func Load(path string) *Kernel {
	cfg := utils.CargarConfiguracion[Kernel](path)

	zero := defaults()
	if cfg.PageSize == 0 {
		cfg.PageSize = zero.PageSize
	}
	if cfg.NumPhysPages == 0 {
		cfg.NumPhysPages = zero.NumPhysPages
	}
	if cfg.ProcessClass == "" {
		cfg.ProcessClass = zero.ProcessClass
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = zero.LogLevel
	}

	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides lets KERNEL_EXECUTABLE, KERNEL_PAGE_SIZE,
// KERNEL_NUM_PHYS_PAGES, KERNEL_PROCESS_CLASS and KERNEL_LOG_LEVEL
// override the file-loaded values, the same shape as VEnvKernel's
// host/port overrides.
func applyEnvOverrides(cfg *Kernel) {
	if v := os.Getenv("KERNEL_EXECUTABLE"); v != "" {
		cfg.ExecutableName = v
	}
	if v := os.Getenv("KERNEL_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("KERNEL_NUM_PHYS_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NumPhysPages = n
		}
	}
	if v := os.Getenv("KERNEL_PROCESS_CLASS"); v != "" {
		cfg.ProcessClass = v
	}
	if v := os.Getenv("KERNEL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// InitLogger configures and returns the package-level logger via
// utils.InicializarLogger (a text handler on stdout at the configured
// level, tagged with the module name).
func InitLogger(levelName, moduleName string) *slog.Logger {
	utils.InicializarLogger(levelName, moduleName)
	return utils.InfoLog
}

// Validate reports the first configuration problem found, if any.
func (c *Kernel) Validate() error {
	if c.ExecutableName == "" {
		return fmt.Errorf("config: executable_name is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive")
	}
	if c.NumPhysPages <= 0 {
		return fmt.Errorf("config: num_phys_pages must be positive")
	}
	return nil
}
