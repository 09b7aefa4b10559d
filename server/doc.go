// Package server implements an embeddable FTP server with virtual
// paths, per-path permissions, layered bandwidth throttling and
// passive-mode data port pooling.
//
// # Overview
//
// Every accepted connection runs a session: a dispatcher that reads
// commands while transfers proceed concurrently, so ABOR works
// mid-transfer. Replies travel through a per-session FIFO queue drained
// by a single writer, which keeps response order deterministic no
// matter how many workers are running.
//
// Clients see a virtual filesystem rooted at "/" and jailed to their
// user's base path on disk; permissions are resolved by nearest parent.
// Disk access goes through the pathio abstraction, so alternative
// backends can be plugged in with a factory.
//
// # Getting started
//
//	users := []*server.User{{
//	    Login:    "alice",
//	    Password: "secret",
//	    BasePath: "/srv/ftp/alice",
//	    HomePath: "/",
//	}}
//	s, err := server.NewServer(":21", server.WithUsers(users...))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
//
// Passing no users serves a single anonymous account with full access
// under the working directory.
//
// # Throttling
//
// Up to four limiter layers apply to every transfer simultaneously:
// server wide, per connection, per user (shared by all of the user's
// sessions) and per user connection. A transfer proceeds only when all
// of them permit it.
//
//	s, _ := server.NewServer(":21",
//	    server.WithSpeedLimits(10<<20, 10<<20),            // whole server
//	    server.WithSpeedLimitsPerConnection(1<<20, 1<<20), // each session
//	)
//
// # Passive mode behind NAT
//
//	s, _ := server.NewServer(":21",
//	    server.WithPassiveForcedAddress("203.0.113.10"),
//	    server.WithDataPorts([]int{50000, 50001, 50002, 50003}),
//	)
package server
