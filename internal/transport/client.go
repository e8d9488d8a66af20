package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/model"
)

// Client defaults.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxBodySize    = 10 * 1024 * 1024
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"

	// checkProxyTimeout is the timeout for proxy reachability checks.
	// It is short because the check only talks to the local proxy, not
	// through the network.
	checkProxyTimeout = 5 * time.Second

	maxRedirects = 10
)

// defaultProxies are the conventional local endpoints of each network's
// daemon.
var defaultProxies = map[model.Network]string{
	model.NetworkTor:      "127.0.0.1:9050",
	model.NetworkI2P:      "127.0.0.1:4444",
	model.NetworkHyphanet: "127.0.0.1:8888",
	model.NetworkLokinet:  "127.0.0.1:1080",
}

// DefaultProxy returns the conventional local proxy endpoint of a network,
// or "" when the network has no transport.
func DefaultProxy(network model.Network) string {
	return defaultProxies[network]
}

// Fetcher fetches one candidate. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, c model.Candidate) (*model.PageResult, error)
}

// Client fetches pages of one network through one proxy endpoint.
//
// Tor and Lokinet are reached through a SOCKS5 proxy, I2P through its HTTP
// proxy, and Hyphanet through the FProxy web gateway, which is addressed
// directly with the key as the request path.
//
// Design decision: One Client per proxy endpoint rather than one per
// network. The scheduler spreads load over several daemons of the same
// network by rotating over Clients, and each Client keeps its own connection
// pool and cookie jar so circuits and sessions never mix between daemons.
type Client struct {
	network      model.Network
	proxyAddress string

	// dialer is the SOCKS5 dialer for Tor and Lokinet; nil otherwise.
	dialer proxy.Dialer

	httpClient *http.Client

	connectTimeout time.Duration
	requestTimeout time.Duration
	maxBodySize    int64
	userAgent      string
	cookie         string
	headers        map[string]string

	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithConnectTimeout sets the proxy connect timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithRequestTimeout sets the per-request timeout. For Hyphanet it is the
// base of a timeout that grows with the candidate's retry count.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithMaxBodySize sets the body truncation limit in bytes.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCookie sets a raw cookie string sent with every request.
func WithCookie(cookie string) ClientOption {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sets extra request headers.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for network through the proxy at proxyAddress
// ("host:port").
//
// This function validates the proxy address format but does not verify
// that the proxy is actually running. Call CheckConnection() to verify.
func NewClient(network model.Network, proxyAddress string, opts ...ClientOption) (*Client, error) {
	if _, ok := defaultProxies[network]; !ok {
		return nil, fmt.Errorf("%s: %w", network, ErrUnsupportedNetwork)
	}
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	c := &Client{
		network:        network,
		proxyAddress:   proxyAddress,
		connectTimeout: DefaultConnectTimeout,
		requestTimeout: DefaultRequestTimeout,
		maxBodySize:    DefaultMaxBodySize,
		userAgent:      DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if usesSOCKS(network) {
		// Tor's and lokinet's SOCKS ports do not require auth.
		forward := &net.Dialer{Timeout: c.connectTimeout}
		dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, forward)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.dialer = dialer
	}
	c.httpClient = c.newHTTPClient()

	return c, nil
}

func usesSOCKS(network model.Network) bool {
	return network == model.NetworkTor || network == model.NetworkLokinet
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
func isValidProxyAddress(address string) bool {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return false
	}

	host := parts[0]
	port := parts[1]
	if host == "" || port == "" {
		return false
	}

	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		if portNum > 65535 {
			return false
		}
	}
	return portNum >= 1
}

// Network returns the network this client fetches from.
func (c *Client) Network() model.Network {
	return c.network
}

// ProxyAddress returns the configured proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// newHTTPClient creates the HTTP client used by Fetch.
//
// Design decisions:
//   - TLS verification is disabled because hidden services use self-signed certs
//   - Cookies are kept per client for session-gated sites
//   - Redirects are limited to 10 and must stay on the same network
//   - Idle connection limits are small because every connection holds a circuit
//     or tunnel
func (c *Client) newHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: c.dialContext,
		// The address itself authenticates the service on these networks.
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Required for hidden services
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		// Compressed response sizes leak content to an observer.
		DisableCompression: true,
	}
	if c.network == model.NetworkI2P {
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: c.proxyAddress})
	}

	headers := map[string]string{
		"User-Agent":      c.userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}
	for k, v := range c.headers {
		headers[k] = v
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:    transport,
			cookie:  c.cookie,
			headers: headers,
		},
		Jar:           jar,
		CheckRedirect: c.checkRedirect,
	}
}

// checkRedirect stops redirect chains that are too long or that leave the
// network. A stopped chain returns the redirect response itself.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	if c.network == model.NetworkHyphanet {
		if req.URL.Host != c.proxyAddress {
			return http.ErrUseLastResponse
		}
		return nil
	}
	if n, ok := classify.Sniff(req.URL.String()); !ok || n != c.network {
		return http.ErrUseLastResponse
	}
	return nil
}

// dialContext opens a connection through the SOCKS5 proxy, or directly for
// the HTTP proxy and the gateway, and wraps it for header order recording.
func (c *Client) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	switch {
	case c.dialer != nil:
		if cd, ok := c.dialer.(proxy.ContextDialer); ok {
			conn, err = cd.DialContext(ctx, network, addr)
		} else {
			conn, err = c.dialer.Dial(network, addr)
		}
	default:
		d := net.Dialer{Timeout: c.connectTimeout}
		conn, err = d.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: conn}, nil
}

// Fetch retrieves the candidate's canonical address.
//
// Non-2xx responses, gateway error pages and transport failures are
// returned as *FetchError. HTTP error responses carry the page so error
// pages can still be fingerprinted. The body is truncated at the
// configured size limit.
func (c *Client) Fetch(ctx context.Context, cand model.Candidate) (*model.PageResult, error) {
	address := cand.CanonicalAddress
	if address == "" {
		address = cand.RawAddress
	}

	target, err := c.requestURL(address)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, Address: address, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeoutFor(cand))
	defer cancel()

	var conn *recordingConn
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if rc, ok := info.Conn.(*recordingConn); ok {
				rc.reset()
				conn = rc
			}
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, Address: address, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("fetch failed", "network", c.network.String(), "address", address, "error", err)
		return nil, classifyError(address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, classifyError(address, err)
	}
	if int64(len(body)) > c.maxBodySize {
		body = body[:c.maxBodySize]
	}

	page := &model.PageResult{
		Address:      address,
		FinalAddress: c.finalAddress(address, target, resp),
		Network:      c.network,
		Domain:       cand.Domain,
		StatusCode:   resp.StatusCode,
		Headers:      resp.Header,
		ContentType:  mediaType(resp.Header.Get("Content-Type"), body),
		Body:         body,
		Elapsed:      time.Since(start),
		FetchedAt:    time.Now(),
	}
	if conn != nil {
		page.HeaderOrder = conn.headerOrder()
	}

	if fe := statusError(address, resp.StatusCode); fe != nil {
		fe.Page = page
		return nil, fe
	}
	if c.network == model.NetworkHyphanet {
		if fe := gatewayError(address, page); fe != nil {
			return nil, fe
		}
	}
	return page, nil
}

// requestURL builds the URL sent to the HTTP client.
func (c *Client) requestURL(address string) (string, error) {
	if c.network == model.NetworkHyphanet {
		if !strings.HasPrefix(address, classify.HyphanetScheme) {
			canonical, _, err := classify.Classify(model.NetworkHyphanet, address)
			if err != nil {
				return "", err
			}
			address = canonical
		}
		return "http://" + c.proxyAddress + classify.HyphanetGatewayPath(address), nil
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// timeoutFor returns the request deadline. Hyphanet data takes longer to
// route on every attempt, so its deadline grows with the retry count.
func (c *Client) timeoutFor(cand model.Candidate) time.Duration {
	if c.network == model.NetworkHyphanet {
		return c.requestTimeout + time.Duration(cand.RetryCount)*hyphanetRetryStep
	}
	return c.requestTimeout
}

// finalAddress returns the address after redirects. Hyphanet gateway URLs
// are mapped back to canonical keys.
func (c *Client) finalAddress(address, target string, resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return address
	}
	final := resp.Request.URL.String()
	if final == target {
		return address
	}
	if c.network == model.NetworkHyphanet {
		if canonical, _, err := classify.Classify(model.NetworkHyphanet, final); err == nil {
			return canonical
		}
	}
	return final
}

// mediaType returns the lowercase media type of a Content-Type header,
// sniffing the body when the header is missing or unparsable.
func mediaType(header string, body []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return strings.ToLower(mt)
		}
	}
	if len(body) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(body)) //nolint:errcheck // DetectContentType always returns a valid type
	return mt
}

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03
)

// socksTestHosts are synthetic, non-existent hosts used for SOCKS5
// verification. We only need the proxy to answer a CONNECT request; the
// connection itself is expected to fail.
var socksTestHosts = map[model.Network]string{
	model.NetworkTor:     "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion",
	model.NetworkLokinet: "yyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyyy.loki",
}

// CheckConnection verifies that the proxy is running and speaks the
// expected protocol.
//
// For SOCKS5 proxies it performs the handshake and a CONNECT to a synthetic
// host: any SOCKS5 reply, success or failure, proves the proxy processed the
// request. For the I2P HTTP proxy and the Hyphanet gateway it sends a plain
// HTTP request and expects an HTTP status line back.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	if usesSOCKS(c.network) {
		return checkSOCKS5(conn, socksTestHosts[c.network])
	}
	return checkHTTP(conn)
}

func checkSOCKS5(conn net.Conn, testHost string) ProxyStatus {
	// Greeting: version + one method + "no auth".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	// CONNECT: version + cmd + reserved + addr type + addr + port 80.
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(testHost)),
	}
	connectReq = append(connectReq, []byte(testHost)...)
	connectReq = append(connectReq, 0x00, 80)

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func checkHTTP(conn net.Conn) ProxyStatus {
	if _, err := conn.Write([]byte("HEAD / HTTP/1.0\r\n\r\n")); err != nil {
		return ProxyStatusCannotConnect
	}
	line, err := bufio.NewReader(conn).ReadSlice('\n')
	if err != nil && len(line) == 0 {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
//
// Design decision: We use a custom RoundTripper to inject headers/cookies
// rather than modifying each request. This ensures all requests (including
// redirects) include the configured values.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
