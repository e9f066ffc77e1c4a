package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/minutestream/engine/internal/marker"
	"github.com/minutestream/engine/internal/minutes"
	"github.com/minutestream/engine/internal/server"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
	Sources struct {
		MicURL        string `yaml:"mic_url"`
		SystemURL     string `yaml:"system_url"`
		Language      string `yaml:"language"`
		SpeakerLabels bool   `yaml:"speaker_labels"`
	} `yaml:"sources"`
	Generator struct {
		URL          string `yaml:"url"`
		APIKey       string `yaml:"api_key"`
		PromptHeader string `yaml:"prompt_header"`
	} `yaml:"generator"`
	Minutes struct {
		CadenceSeconds int                `yaml:"cadence_seconds"`
		Fields         []marker.FieldSpec `yaml:"fields"`
		Speakers       map[string]string  `yaml:"speakers"`
	} `yaml:"minutes"`
	Redis struct {
		Addr          string `yaml:"addr"`
		ChannelPrefix string `yaml:"channel_prefix"`
	} `yaml:"redis"`
	Output struct {
		Dir             string `yaml:"dir"`
		SaveTranscripts bool   `yaml:"save_transcripts"`
		SaveSessionLogs bool   `yaml:"save_session_logs"`
	} `yaml:"output"`
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "Configuration file path")
	flag.Parse()

	// Load configuration
	config := &Config{}
	if err := loadConfig(configFile, config); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cadence := config.Minutes.CadenceSeconds
	if cadence <= 0 {
		cadence = 60
	}

	// Create and start server
	srv, err := server.New(server.Config{
		Host:               config.Server.Host,
		Port:               config.Server.Port,
		MicSourceURL:       config.Sources.MicURL,
		SystemSourceURL:    config.Sources.SystemURL,
		GeneratorURL:       config.Generator.URL,
		GeneratorAPIKey:    config.Generator.APIKey,
		RedisAddr:          config.Redis.Addr,
		RedisChannelPrefix: config.Redis.ChannelPrefix,
		OutputDir:          config.Output.Dir,
		SaveTranscripts:    config.Output.SaveTranscripts,
		SaveSessionLogs:    config.Output.SaveSessionLogs,
		Minutes: minutes.Config{
			Fields:              config.Minutes.Fields,
			CadenceSeconds:      cadence,
			LanguageHint:        config.Sources.Language,
			EnableSpeakerLabels: config.Sources.SpeakerLabels,
			SpeakerNames:        config.Minutes.Speakers,
			PromptHeader:        config.Generator.PromptHeader,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Start server in background
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")
	srv.Stop()
}

func loadConfig(filename string, config *Config) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	return decoder.Decode(config)
}
