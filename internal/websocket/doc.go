// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

/*
Package websocket pushes chart state to browsers.

A Hub tracks connected clients and fans messages out to them; each Client
runs a read goroutine (answers ping frames, detects disconnects) and a write
goroutine (sends hub messages, keepalive pings). The EventBridge subscribes
to the event bus and hands every chart event to the hub.

	pipeline ──publish──▶ events.Bus ──▶ EventBridge ──▶ Hub ──▶ clients

Messages are JSON objects {"type": ..., "data": ...}. On connect a client
receives one charts.snapshot message with the current state; after that it
receives charts.loaded, charts.cleared and charts.failed as they happen, with
the event envelope as data.

	const ws = new WebSocket('ws://localhost:8080/api/v1/ws');
	ws.onmessage = (e) => {
	    const msg = JSON.parse(e.data);
	    if (msg.type === 'charts.loaded') draw(msg.data.data.charts);
	    if (msg.type === 'charts.cleared') clear();
	};

Clients whose send buffer fills up are dropped rather than allowed to stall
the hub.
*/
package websocket
