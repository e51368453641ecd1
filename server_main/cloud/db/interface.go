// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

type Database interface {
	PutGeneration(generation Generation) error
	ReadGenerationsBySession(sessionID string) (generations []Generation, err error)
	UpdateServer(server Server) error
	ReadServersByRegion(region string) (servers []Server, err error)
}
