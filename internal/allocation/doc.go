// Package allocation queues batch allocation jobs and delivers each of them
// through a fresh user escrow deployer. Jobs are persisted in a Store, their
// ids travel through a Queue, and a Processor drains the queue one job at a
// time because the ledger serialises transactions from a single deployer.
package allocation
