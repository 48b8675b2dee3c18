package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"net-scout/internal/trace"
)

// Provider kinds, also the prefix of the cache subject key.
const (
	KindRDNS       = "rdns"
	KindWhois      = "whois"
	KindTraceroute = "traceroute"
	KindPDNS       = "pdns"
)

// Result payloads keep external output bounded.
const maxToolOutput = 20000

// Provider performs one best-effort lookup kind for a subject. Lookup
// never returns an error: failures (timeout, missing binary, network) are
// represented in the returned value, or as nil for "attempted, no data".
type Provider interface {
	Kind() string
	Lookup(ctx context.Context, subject string) any
}

// RDNSProvider resolves a reverse DNS name for an IP.
type RDNSProvider struct {
	resolver *net.Resolver
	timeout  time.Duration
}

func NewRDNSProvider(timeout time.Duration) *RDNSProvider {
	return &RDNSProvider{resolver: net.DefaultResolver, timeout: timeout}
}

func (p *RDNSProvider) Kind() string { return KindRDNS }

func (p *RDNSProvider) Lookup(ctx context.Context, subject string) any {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	names, err := p.resolver.LookupAddr(ctx, subject)
	if err != nil || len(names) == 0 {
		return nil
	}
	return strings.TrimSuffix(names[0], ".")
}

// WhoisProvider shells out to the system whois binary. A missing binary or
// a timeout yields nil, matching "lookup attempted, no data".
type WhoisProvider struct {
	timeout time.Duration
}

func NewWhoisProvider(timeout time.Duration) *WhoisProvider {
	return &WhoisProvider{timeout: timeout}
}

func (p *WhoisProvider) Kind() string { return KindWhois }

func (p *WhoisProvider) Lookup(ctx context.Context, subject string) any {
	out, err := runCommand(ctx, p.timeout, "whois", subject)
	if err != nil && out == "" {
		return nil
	}
	return out
}

// TracerouteProvider runs the system traceroute with numeric output (to
// avoid slow in-tool DNS resolution), parses the hops and attaches geo
// attributes when a correlator is wired.
type TracerouteProvider struct {
	maxHops    int
	timeout    time.Duration
	correlator *trace.Correlator
}

func NewTracerouteProvider(maxHops int, timeout time.Duration, correlator *trace.Correlator) *TracerouteProvider {
	return &TracerouteProvider{maxHops: maxHops, timeout: timeout, correlator: correlator}
}

func (p *TracerouteProvider) Kind() string { return KindTraceroute }

func (p *TracerouteProvider) Lookup(ctx context.Context, subject string) any {
	out, err := runCommand(ctx, p.timeout, "traceroute", "-n", "-m", strconv.Itoa(p.maxHops), subject)
	if err != nil && out == "" {
		return fmt.Sprintf("traceroute error: %v", err)
	}

	hops := trace.Parse(out)
	if p.correlator != nil {
		p.correlator.AnnotateHops(ctx, hops)
	}
	return map[string]any{
		"raw":  out,
		"hops": hops,
	}
}

// PDNSProvider queries an external passive DNS API. Only constructed when
// credentials are configured.
type PDNSProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPDNSProvider(baseURL, apiKey string, timeout time.Duration) *PDNSProvider {
	return &PDNSProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PDNSProvider) Kind() string { return KindPDNS }

func (p *PDNSProvider) Lookup(ctx context.Context, subject string) any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+subject, nil)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return map[string]any{"error": fmt.Sprintf("pdns status %d", resp.StatusCode)}
	}
	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return payload
}

// runCommand executes an external tool under a wall-clock timeout and
// returns its trimmed, bounded combined output. A hung process is killed
// when the context expires; whatever partial output exists is returned.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if len(text) > maxToolOutput {
		text = text[:maxToolOutput]
	}
	return text, err
}
