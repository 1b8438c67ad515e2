package config

import (
	"fmt"
	"os"

	"turnero/internal/models"

	"gopkg.in/yaml.v3"
)

// CalendarSeed is the initial set of calendar rules loaded at startup.
type CalendarSeed struct {
	Businesses []BusinessSeed `yaml:"businesses"`
}

type BusinessSeed struct {
	models.Business `yaml:",inline"`
	Resources       []models.Resource `yaml:"resources"`
	Services        []ServiceSeed     `yaml:"services"`
}

// ServiceSeed refers to resources by name because ids are assigned on insert.
type ServiceSeed struct {
	Name            string   `yaml:"name"`
	PriceCents      int64    `yaml:"price_cents"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Resources       []string `yaml:"resources"`
}

func LoadCalendar(path string) (*CalendarSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed CalendarSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse calendar %s: %w", path, err)
	}

	for _, b := range seed.Businesses {
		if b.Slug == "" {
			return nil, fmt.Errorf("business %q has no slug", b.Name)
		}
		names := make(map[string]bool, len(b.Resources))
		for _, r := range b.Resources {
			if names[r.Name] {
				return nil, fmt.Errorf("business %q: duplicate resource %q", b.Slug, r.Name)
			}
			names[r.Name] = true
		}
		for _, s := range b.Services {
			for _, rn := range s.Resources {
				if !names[rn] {
					return nil, fmt.Errorf("business %q: service %q refers to unknown resource %q", b.Slug, s.Name, rn)
				}
			}
		}
	}
	return &seed, nil
}
