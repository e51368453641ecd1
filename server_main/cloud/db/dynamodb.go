// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/guregu/dynamo"
)

type DynamoDBDatabase struct {
	svc              *dynamodb.DynamoDB
	db               *dynamo.DB
	generationsTable dynamo.Table
	serversTable     dynamo.Table
}

func NewDynamoDBDatabase(session *session.Session, stage string) (*DynamoDBDatabase, error) {
	ddb := &DynamoDBDatabase{svc: dynamodb.New(session)}
	ddb.db = dynamo.NewFromIface(ddb.svc)
	ddb.generationsTable = ddb.db.Table("cartograph-" + stage + "-generations")
	ddb.serversTable = ddb.db.Table("cartograph-" + stage + "-servers")
	return ddb, nil
}

func (ddb *DynamoDBDatabase) PutGeneration(generation Generation) error {
	err := ddb.generationsTable.Put(generation).If("attribute_not_exists(created)").Run()
	if err != nil {
		// Already recorded
		if _, ok := err.(*dynamodb.ConditionalCheckFailedException); ok {
			return nil
		}
	}
	return err
}

func (ddb *DynamoDBDatabase) ReadGenerationsBySession(sessionID string) (generations []Generation, err error) {
	query := ddb.generationsTable.Get("sessionID", sessionID).Iter()

	for {
		var generation Generation
		ok := query.Next(&generation)
		if !ok {
			err = query.Err()
			return
		}
		generations = append(generations, generation)
	}
}

func (ddb *DynamoDBDatabase) UpdateServer(server Server) error {
	return ddb.serversTable.Put(server).Run()
}

func (ddb *DynamoDBDatabase) ReadServersByRegion(region string) (servers []Server, err error) {
	query := ddb.serversTable.Get("region", region).Iter()

	for {
		var server Server
		ok := query.Next(&server)
		if !ok {
			err = query.Err()
			return
		}
		servers = append(servers, server)
	}
}
