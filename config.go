package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SKUID      string `yaml:"sku_id"`
	SeckillNum int    `yaml:"seckill_num"`

	// Anti-fraud fallbacks used when browser mining is disabled or fails.
	EID string `yaml:"eid"`
	FP  string `yaml:"fp"`

	ReadyTime string `yaml:"ready_time"`
	BuyTime   string `yaml:"buy_time"`
	EndTime   string `yaml:"end_time"`

	PollIntervalMs        int `yaml:"poll_interval_ms"`
	LinkRetryBudgetMs     int `yaml:"link_retry_budget_ms"`
	CheckoutPageTimeoutMs int `yaml:"checkout_page_timeout_ms"`
	PrebuildAttempts      int `yaml:"prebuild_attempts"`

	Workers                  int  `yaml:"workers"`
	RefreshPayloadPerAttempt bool `yaml:"refresh_payload_per_attempt"`
	UseServerTime            bool `yaml:"use_server_time"`

	CookieDir string `yaml:"cookie_dir"`
	DBPath    string `yaml:"db_path"`

	BrowserTokens      bool   `yaml:"browser_tokens"`
	BrowserProfilePath string `yaml:"browser_profile_path"`
	Headless           bool   `yaml:"headless"`

	DebugMode bool `yaml:"debug_mode"`

	Log       LogConfig       `yaml:"log"`
	Messenger MessengerConfig `yaml:"messenger"`
	Endpoints Endpoints       `yaml:"endpoints"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MessengerConfig struct {
	Enable      bool   `yaml:"enable"`
	WebhookURL  string `yaml:"webhook_url"`
	EmailEnable bool   `yaml:"email_enable"`
	ResendKey   string `yaml:"resend_api_key"`
	EmailFrom   string `yaml:"email_from"`
	EmailTo     string `yaml:"email_to"`
}

// Endpoints lists every remote URL the client talks to. ItemPage is a format string taking the SKU.
type Endpoints struct {
	ItemPage     string `yaml:"item_page"`
	Routing      string `yaml:"routing"`
	CheckoutPage string `yaml:"checkout_page"`
	InitInfo     string `yaml:"init_info"`
	SubmitOrder  string `yaml:"submit_order"`
	UserInfo     string `yaml:"user_info"`
	OrderList    string `yaml:"order_list"`
	Reserve      string `yaml:"reserve"`
	ServerTime   string `yaml:"server_time"`
	LoginPage    string `yaml:"login_page"`
	QRShow       string `yaml:"qr_show"`
	QRCheck      string `yaml:"qr_check"`
	QRValidate   string `yaml:"qr_validate"`
	Home         string `yaml:"home"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		ItemPage:     "https://item.jd.com/%s.html",
		Routing:      "https://itemko.jd.com/itemShowBtn",
		CheckoutPage: "https://marathon.jd.com/seckill/seckill.action",
		InitInfo:     "https://marathon.jd.com/seckillnew/orderService/pc/init.action",
		SubmitOrder:  "https://marathon.jd.com/seckillnew/orderService/pc/submitOrder.action",
		UserInfo:     "https://passport.jd.com/user/petName/getUserInfoForMiniJd.action",
		OrderList:    "https://order.jd.com/center/list.action",
		Reserve:      "https://yushou.jd.com/youshouinfo.action",
		ServerTime:   "https://a.jd.com//ajax/queryServerData.html",
		LoginPage:    "https://passport.jd.com/new/login.aspx",
		QRShow:       "https://qr.m.jd.com/show",
		QRCheck:      "https://qr.m.jd.com/check",
		QRValidate:   "https://passport.jd.com/uc/qrCodeTicketValidation",
		Home:         "https://www.jd.com/",
	}
}

func (e Endpoints) Item(skuID string) string {
	return fmt.Sprintf(e.ItemPage, skuID)
}

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		SKUID:                    "",
		SeckillNum:               2,
		PollIntervalMs:           200,
		LinkRetryBudgetMs:        3000,
		CheckoutPageTimeoutMs:    2000,
		PrebuildAttempts:         3,
		Workers:                  1,
		RefreshPayloadPerAttempt: false,
		UseServerTime:            false,
		CookieDir:                filepath.Join(userDataDir, "cookies"),
		DBPath:                   filepath.Join(userDataDir, "history.db"),
		BrowserTokens:            false,
		BrowserProfilePath:       filepath.Join(userDataDir, "browser-profile"),
		Headless:                 false,
		DebugMode:                false,
		Log: LogConfig{
			Level:      "info",
			File:       filepath.Join(userDataDir, "logs", "jdmt.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Endpoints: DefaultEndpoints(),
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if config.CookieDir != "" {
		if err := os.MkdirAll(config.CookieDir, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports configuration errors that make a run pointless.
func (c *Config) Validate() error {
	if c.SKUID == "" {
		return fmt.Errorf("sku_id is required")
	}
	if c.SeckillNum < 1 {
		return fmt.Errorf("seckill_num must be at least 1, got %d", c.SeckillNum)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

func (c *Config) Target() ProductTarget {
	return ProductTarget{SKUID: c.SKUID, Quantity: c.SeckillNum}
}

// Window parses the three configured instants. Ordering is not checked.
func (c *Config) Window() (TimeWindow, error) {
	ready, err := ParseSaleTime(c.ReadyTime)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("ready_time: %w", err)
	}
	start, err := ParseSaleTime(c.BuyTime)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("buy_time: %w", err)
	}
	end, err := ParseSaleTime(c.EndTime)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("end_time: %w", err)
	}
	return TimeWindow{ReadyAt: ready, StartAt: start, EndAt: end}, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) LinkRetryBudget() time.Duration {
	return time.Duration(c.LinkRetryBudgetMs) * time.Millisecond
}

func (c *Config) CheckoutPageTimeout() time.Duration {
	return time.Duration(c.CheckoutPageTimeoutMs) * time.Millisecond
}

func getUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./jdmt-data"
	}
	return filepath.Join(home, ".jdmt")
}
