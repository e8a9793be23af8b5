package dsl

import "strings"

func normalizeConfig(cfg *Config) {
	cfg.Server.Transport = lowerTrim(cfg.Server.Transport)
	cfg.Server.HTTP.Path = trimPath(cfg.Server.HTTP.Path)
	cfg.Server.HTTP.APIPath = trimPath(cfg.Server.HTTP.APIPath)
	cfg.Translator.Kind = lowerTrim(cfg.Translator.Kind)
	cfg.Translator.Model = strings.TrimSpace(cfg.Translator.Model)
	for i := range cfg.Startup {
		cfg.Startup[i].Step = lowerTrim(cfg.Startup[i].Step)
	}
	for i := range cfg.Tools {
		cfg.Tools[i].Name = lowerTrim(cfg.Tools[i].Name)
	}
	for i := range cfg.Resources {
		cfg.Resources[i].URI = strings.TrimSpace(cfg.Resources[i].URI)
	}
}

func lowerTrim(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// trimPath drops a trailing slash so "/api/" and "/api" mount the same prefix.
func trimPath(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 1 {
		value = strings.TrimRight(value, "/")
	}
	return value
}
