package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// webhookSchemes はWebhook送信先として許可するURLスキーム。
var webhookSchemes = []string{"http", "https"}

// blockedPrefixes はWebhook送信先として拒否するアドレス範囲。
// プライベート、ループバック、リンクローカル（メタデータIP 169.254.169.254を含む）、カレントネットワーク。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// WebhookGuard は公開先WebhookへのリクエストをSSRFから保護する。
type WebhookGuard struct {
	ports []uint16
}

// NewWebhookGuard はWebhookGuardの新しいインスタンスを生成する。
// portsが空の場合は80と443のみ許可する。
func NewWebhookGuard(ports ...uint16) *WebhookGuard {
	if len(ports) == 0 {
		ports = []uint16{80, 443}
	}
	return &WebhookGuard{ports: ports}
}

// Client はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはDialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディングによるプライベートアドレスへの到達も防止される。
func (g *WebhookGuard) Client(timeout time.Duration) *http.Client {
	ports := make([]int, len(g.ports))
	for i, p := range g.ports {
		ports[i] = int(p)
	}
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(webhookSchemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はWebhook URLを起動時に静的検証する。DNS解決は行わない。
func (g *WebhookGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("Webhook URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("Webhook URLが不正です: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("許可されていないスキームです: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("Webhook URLにホストがありません: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("ブロック対象のホストです: %s", host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr) {
				return fmt.Errorf("ブロック対象のIPアドレスです: %s", addr)
			}
		}
	}
	return nil
}
