// Package config はサービスとCLIの設定を読み込む。
//
// 設定値は環境変数（例: LINKEDEVENTS_URL）と任意のYAMLファイルから読み込み、
// 各クライアントのコンストラクタへ明示的に渡す。グローバルな設定参照は行わない。
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNotConfigured は必須の接続設定が無いことを表す。
var ErrNotConfigured = errors.New("上流サービスの接続設定がありません")

// Config はアプリケーション全体の設定。
type Config struct {
	// Server はHTTPサーバーの設定。
	Server ServerConfig `mapstructure:"server"`
	// Auth は認証の設定。
	Auth AuthConfig `mapstructure:"auth"`
	// Database はsqliteの設定。
	Database DatabaseConfig `mapstructure:"database"`
	// CORS は許可するオリジンの設定。
	CORS CORSConfig `mapstructure:"cors"`
	// LinkedEvents はLinkedEvents APIへの接続設定。
	LinkedEvents LinkedEventsConfig `mapstructure:"linkedevents"`
	// ServiceBus はPalveluväylä（Service Bus）への接続設定。
	ServiceBus UpstreamConfig `mapstructure:"service_bus"`
	// YRTTI はYRTTI APIへの接続設定。
	YRTTI UpstreamConfig `mapstructure:"yrtti"`
	// Ahjo はAhjo APIへの接続設定。
	Ahjo AhjoConfig `mapstructure:"ahjo"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port は待ち受けポート。
	Port string `mapstructure:"port"`
	// Env は実行環境（development / production）。
	Env string `mapstructure:"env"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのCIDR一覧。
	// 空の場合は接続元アドレスをそのままクライアントIPとして扱う。
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// AuthConfig は認証の設定。
type AuthConfig struct {
	// JWTSecret はJWTの署名鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// DatabaseConfig はsqliteの設定。
type DatabaseConfig struct {
	// Path はデータベースファイルのパス。
	Path string `mapstructure:"path"`
}

// CORSConfig はCORSの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジンの一覧。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LinkedEventsConfig はLinkedEvents APIへの接続設定。
type LinkedEventsConfig struct {
	// URL はAPIのベースURL。
	URL string `mapstructure:"url"`
	// APIKey はapikeyヘッダーに付与するキー。
	APIKey string `mapstructure:"api_key"`
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
	// DataSource はイベントの登録元データソース。
	DataSource string `mapstructure:"data_source"`
	// PublisherAncestor は一覧取得時に絞り込む組織。
	PublisherAncestor string `mapstructure:"publisher_ancestor"`
}

// UpstreamConfig はベーシック認証を使う上流サービスへの接続設定。
type UpstreamConfig struct {
	// BaseURL はAPIのベースURL。
	BaseURL string `mapstructure:"base_url"`
	// Username はベーシック認証のユーザー名。
	Username string `mapstructure:"username"`
	// Password はベーシック認証のパスワード。
	Password string `mapstructure:"password"`
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
}

// AhjoConfig はAhjo APIへの接続設定。
type AhjoConfig struct {
	// URL はAhjo REST APIのベースURL。
	URL string `mapstructure:"url"`
	// Token はAhjo APIのアクセストークン。
	Token string `mapstructure:"token"`
	// APIBaseURL はAhjoが添付ファイルを取得するこのサービスの公開URL。
	APIBaseURL string `mapstructure:"api_base_url"`
	// CallbackToken はAhjoがこのサービスを呼び出す際に送るトークン。
	CallbackToken string `mapstructure:"callback_token"`
	// AllowedIPs はAhjoからの呼び出しを受け付ける送信元（CIDRまたは単一IP）の一覧。
	AllowedIPs []string `mapstructure:"allowed_ips"`
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
}

// Validate はLinkedEventsの必須設定が揃っているかを検証する。
func (c LinkedEventsConfig) Validate() error {
	if c.URL == "" || c.APIKey == "" {
		return fmt.Errorf("LinkedEvents: %w", ErrNotConfigured)
	}
	return nil
}

// Validate はベースURLが設定されているかを検証する。
func (c UpstreamConfig) Validate(service string) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s: %w", service, ErrNotConfigured)
	}
	return nil
}

// Validate はAhjoの必須設定が揃っているかを検証する。
func (c AhjoConfig) Validate() error {
	if c.URL == "" || c.APIBaseURL == "" {
		return fmt.Errorf("Ahjo: %w", ErrNotConfigured)
	}
	return nil
}

// AllowedPrefixes はAllowedIPsをアドレス範囲に変換する。
// 単一IPはそのアドレスだけを含む範囲として扱う。
func (c AhjoConfig) AllowedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.AllowedIPs))
	for _, entry := range c.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("ahjo.allowed_ipsの値が不正です %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("ahjo.allowed_ipsの値が不正です %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// defaults は設定キーと既定値。
// 環境変数から読み込むキーは既定値（空文字列を含む）を登録しておく必要がある。
var defaults = map[string]any{
	"server.port":                     "8080",
	"server.env":                      "development",
	"server.trusted_proxies":          []string{},
	"auth.jwt_secret":                 "",
	"auth.token_ttl":                  "24h",
	"database.path":                   "yjdh.db",
	"cors.allowed_origins":            []string{"http://localhost:3000"},
	"linkedevents.url":                "",
	"linkedevents.api_key":            "",
	"linkedevents.timeout":            "30s",
	"linkedevents.data_source":        "tet",
	"linkedevents.publisher_ancestor": "",
	"service_bus.base_url":            "",
	"service_bus.username":            "",
	"service_bus.password":            "",
	"service_bus.timeout":             "30s",
	"yrtti.base_url":                  "",
	"yrtti.username":                  "",
	"yrtti.password":                  "",
	"yrtti.timeout":                   "30s",
	"ahjo.url":                        "",
	"ahjo.token":                      "",
	"ahjo.api_base_url":               "",
	"ahjo.callback_token":             "",
	"ahjo.allowed_ips":                []string{"127.0.0.1", "::1"},
	"ahjo.timeout":                    "30s",
}

// New は既定値と環境変数の対応を登録したviperインスタンスを返す。
// キー "linkedevents.api_key" は環境変数 LINKEDEVENTS_API_KEY に対応する。
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load は環境変数とfile（空の場合は読み込まない）から設定を読み込む。
func Load(file string) (Config, error) {
	v := New()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}
	return Decode(v)
}

// Decode はviperインスタンスの内容をConfigに変換する。
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	return cfg, nil
}
