package model

import "time"

// ConnectionEvent is one observed network flow from the ip_events log.
// The event log is ingested elsewhere; net-scout only reads it.
type ConnectionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	DstPort   int       `json:"dst_port"`
	Geo       *Geo      `json:"geo,omitempty"`
}

// Geo holds approximate location attributes attached to an event endpoint.
type Geo struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
}
