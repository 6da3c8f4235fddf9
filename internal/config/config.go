package config

import (
	"fmt"
	"strings"

	"github.com/npezzotti/go-relay/internal/types"
	"github.com/spf13/viper"
)

const (
	defaultPort           = "3001"
	defaultAllowedOrigins = "*"
	envPrefix             = "RELAY"
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	LikeDelivery   types.LikeDelivery
}

// Env holds the settings read from the process environment. They serve as
// defaults for the command line flags.
type Env struct {
	Port           string
	AllowedOrigins []string
	LikeDelivery   string
}

// FromEnv reads PORT, RELAY_ALLOWED_ORIGINS and RELAY_LIKE_DELIVERY.
func FromEnv() *Env {
	v := viper.New()
	v.SetDefault("port", defaultPort)
	v.SetDefault("allowed_origins", defaultAllowedOrigins)
	v.SetDefault("like_delivery", string(types.LikeBroadcast))

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	// the listen port keeps the conventional unprefixed name
	v.BindEnv("port", "PORT")

	return &Env{
		Port:           v.GetString("port"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		LikeDelivery:   v.GetString("like_delivery"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLikeDelivery(s string) (types.LikeDelivery, error) {
	switch ld := types.LikeDelivery(strings.ToLower(s)); ld {
	case types.LikeBroadcast, types.LikeToOwner:
		return ld, nil
	default:
		return "", fmt.Errorf("unknown like delivery %q", s)
	}
}

func NewConfig(serverAddr string, allowedOrigins []string, likeDelivery string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if len(allowedOrigins) == 0 {
		return nil, fmt.Errorf("allowed origins cannot be empty")
	}

	ld, err := parseLikeDelivery(likeDelivery)
	if err != nil {
		return nil, fmt.Errorf("like delivery: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		AllowedOrigins: allowedOrigins,
		LikeDelivery:   ld,
	}, nil
}
