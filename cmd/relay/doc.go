// Package main hosts the relay CLI entrypoint and command graph.
//
// "relay run <stage>" drains one stage queue and is what upstream stages
// launch. "relay watch" keeps every stage running from one process. The
// remaining commands inspect queues, check the environment, and scaffold
// configuration.
package main
