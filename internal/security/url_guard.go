package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部取得で許可するURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は外部取得を拒否するネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", // RFC 1918
	"127.0.0.0/8", "::1/128", // ループバック
	"169.254.0.0/16", "fe80::/10", // リンクローカル（メタデータIPを含む）
	"0.0.0.0/8",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// URLGuard はニュースフィード等、設定由来の外部URLへのリクエストを制限する。
type URLGuard struct {
	ports []int
}

// NewURLGuard はURLGuardを生成する。portsが空の場合は80と443のみ許可する。
func NewURLGuard(ports ...int) *URLGuard {
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	return &URLGuard{ports: ports}
}

// NewClient はプライベートIP等への接続をダイヤル時に拒否するHTTPクライアントを返す。
// 名前解決後のアドレスで判定するため、DNSリバインディングも防げる。
func (g *URLGuard) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL は名前解決を行わずにURLを静的に検証する。
// 起動時に設定値を早期に弾くためのもので、実際の防御はNewClient側で行う。
func (g *URLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, n := range blockedNetworks {
			if n.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}
	return nil
}
