// Package config reads the runtime's environment-variable configuration
// in the teacher's own style: plain getters with sane defaults, no
// configuration framework. Extended per the external-interfaces surface
// (GATEWAY_ADDR, AGENT_BACKEND, DSL_FAIL_POLICY) alongside the database
// connection string the teacher already reads.
package config

import (
	"os"
	"strings"

	"github.com/adamtc007/ob-poc-sub006/internal/verbsurface"
)

// DatabaseURL returns the Postgres connection string, preferring
// DATABASE_URL (spec §6.4) and falling back to the teacher's original
// DB_CONN_STRING for compatibility with existing deployments.
func DatabaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("DB_CONN_STRING"); v != "" {
		return v
	}
	return "postgres://localhost:5432/postgres?sslmode=disable"
}

// GatewayAddr returns the EntityGateway RPC address (spec §6.2, §6.4).
// An empty result means no gateway is configured; callers should treat
// every entity reference as Deferred rather than dial an empty address.
func GatewayAddr() string {
	return os.Getenv("GATEWAY_ADDR")
}

// AgentBackend names the configured LLM provider for dsl_generate (spec
// §6.4). "gemini" is the only backend internal/nlgen implements today;
// an empty value disables dsl_generate.
func AgentBackend() string {
	return os.Getenv("AGENT_BACKEND")
}

// APIKey looks for GEMINI_API_KEY first, falling back to GOOGLE_API_KEY,
// exactly as the teacher's main.go getAPIKey() does.
func APIKey() string {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("GOOGLE_API_KEY")
}

// FailPolicy returns the configured verb-surface fail policy (spec §4.8
// step 7, §6.4 DSL_FAIL_POLICY), defaulting to FailClosed — the safe
// default when the envelope cannot be consulted.
func FailPolicy() verbsurface.VerbSurfaceFailPolicy {
	switch strings.ToLower(os.Getenv("DSL_FAIL_POLICY")) {
	case "failopen", "fail_open", "open":
		return verbsurface.FailOpen
	default:
		return verbsurface.FailClosed
	}
}
