package config

type ServerConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	GRPC GRPCConfig `yaml:"grpc"`
}

type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GRPCConfig configures the health endpoint. A zero port disables it.
type GRPCConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}
