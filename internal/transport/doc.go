// Package transport fetches pages from the anonymity networks.
//
// Each network is reached through the local daemon it ships with:
//
//   - Tor: SOCKS5 proxy (default 127.0.0.1:9050), or an embedded daemon
//     started through tornago
//   - I2P: HTTP proxy (default 127.0.0.1:4444)
//   - Hyphanet: FProxy web gateway (default 127.0.0.1:8888), addressed
//     directly with the key as the request path
//   - Lokinet: SOCKS5 proxy (default 127.0.0.1:1080)
//
// A Client serves one proxy endpoint. Fetch returns a model.PageResult or a
// *FetchError whose Transient method tells the scheduler whether to retry.
//
// Design decision: Response header order is recovered by recording the raw
// response head on the connection, because net/http only exposes headers as
// a map. This works for plaintext HTTP, which is what almost every hidden
// service serves; for HTTPS the order is left empty.
package transport
