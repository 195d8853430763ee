// RideCharts - Taxi Ride Analytics Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ridecharts

/*
Package supervisor runs the long-lived parts of the server under a suture v4
tree:

	RootSupervisor ("ridecharts")
	├── DataSupervisor ("data-layer")
	│   └── PipelineService
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── EventBridgeService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services restart with suture's backoff; a failure only restarts the
services of its own layer. Supervisor events are logged through sutureslog
and the zerolog slog bridge:

	logger := logging.NewComponentSlogLogger("supervisor")
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewPipelineService(p, cfg.Pipeline.LoadOnStart))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, srv.Addr, 10*time.Second))
	err = tree.Serve(ctx)

The service wrappers live in the services subpackage.
*/
package supervisor
