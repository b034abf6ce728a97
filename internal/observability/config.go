package observability

// Config captures opt-in observability toggles.
type Config struct {
	EnablePprofTrace bool
	// OTelEndpoint is an OTLP/HTTP collector URL; empty disables tracing.
	OTelEndpoint string
	ServiceName  string
}
