// Package ttconnect is a unified client for Indian retail brokerage
// APIs. One canonical surface for profile, funds, portfolio, order
// lifecycle, margin estimation, and real-time tick streaming, served
// over heterogeneous vendor back ends, with a local relational snapshot
// of each vendor's instrument master translating the instruments users
// write into the opaque tokens vendors trade on.
//
// Construct a client with a broker id and a configuration map:
//
//	cfg := config.Config{"api_key": "...", "access_token": "..."}
//	client, err := ttconnect.New(ctx, "zerodha", cfg)
//
// Supported brokers register themselves at import time; importing this
// package pulls in all in-tree vendors.
package ttconnect

import (
	// In-tree vendor adapters register with the broker registry.
	_ "github.com/tradetools/ttconnect/brokers/angelone"
	_ "github.com/tradetools/ttconnect/brokers/zerodha"
)
