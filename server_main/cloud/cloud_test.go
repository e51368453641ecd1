// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"net"
	"testing"
	"time"

	"github.com/SoftbearStudios/cartograph/server"
	"github.com/SoftbearStudios/cartograph/server_main/cloud/db"
)

func TestParseUserData(t *testing.T) {
	data, err := parseUserData("REGION=\"us-east-1\"\r\nSTAGE = prod\nSERVER_SLOTS=4\nOTHER\n")
	if err != nil {
		t.Fatal(err)
	}
	if *data != (UserData{Region: "us-east-1", Stage: "prod", ServerSlots: 4}) {
		t.Errorf("unexpected %+v", *data)
	}

	for _, userData := range []string{
		"STAGE=prod",
		"REGION=us-east-1",
		"REGION=us-east-1\nSTAGE=prod\nSERVER_SLOTS=x",
		"REGION=us-east-1\nSTAGE=prod\nSERVER_SLOTS=0",
	} {
		if _, err := parseUserData(userData); err == nil {
			t.Errorf("%q: expected error", userData)
		}
	}
}

func TestAllocateSlot(t *testing.T) {
	ip := net.ParseIP("10.0.0.3")
	servers := []db.Server{
		{Slot: 0, IP: net.ParseIP("10.0.0.1")},
		{Slot: 2, IP: net.ParseIP("10.0.0.2")},
	}

	if slot := allocateSlot(servers, ip, 3); slot != 1 {
		t.Errorf("expected first free slot got %d", slot)
	}
	if slot := allocateSlot(append(servers, db.Server{Slot: 1, IP: ip}), ip, 3); slot != 1 {
		t.Errorf("expected reclaimed slot got %d", slot)
	}
	if slot := allocateSlot(servers, ip, 1); slot != -1 {
		t.Errorf("expected no slot got %d", slot)
	}
}

func TestGenerationRecord(t *testing.T) {
	created := time.Unix(1000, 0)
	record := generationRecord(server.Generation{
		SessionID: "s",
		Created:   created,
		Duration:  1500 * time.Millisecond,
		Outcome:   server.OutcomeSuccess,
		FinalKey:  "generations/s/1000000/final.png",
	})

	if record.Created != 1000000 || record.Duration != 1.5 || record.FinalKey == "" {
		t.Errorf("unexpected %+v", record)
	}
	if record.TTL != created.Add(generationTTL).Unix() {
		t.Errorf("unexpected ttl %d", record.TTL)
	}

	generation := generationFromRecord(record)
	if !generation.Created.Equal(created) || generation.Duration != 1500*time.Millisecond || generation.FinalKey != record.FinalKey {
		t.Errorf("unexpected %+v", generation)
	}
}

// memoryDatabase keeps records in memory.
type memoryDatabase struct {
	generations []db.Generation
	servers     []db.Server
}

func (m *memoryDatabase) PutGeneration(generation db.Generation) error {
	m.generations = append(m.generations, generation)
	return nil
}

func (m *memoryDatabase) ReadGenerationsBySession(sessionID string) (generations []db.Generation, err error) {
	for _, generation := range m.generations {
		if generation.SessionID == sessionID {
			generations = append(generations, generation)
		}
	}
	return
}

func (m *memoryDatabase) UpdateServer(server db.Server) error {
	m.servers = append(m.servers, server)
	return nil
}

func (m *memoryDatabase) ReadServersByRegion(region string) (servers []db.Server, err error) {
	for _, server := range m.servers {
		if server.Region == region {
			servers = append(servers, server)
		}
	}
	return
}

func TestCloud_Generations(t *testing.T) {
	cloud := &Cloud{region: "us-east-1", database: &memoryDatabase{}}
	for _, generation := range []server.Generation{
		{SessionID: "a", Created: time.Unix(2, 0), Prompt: "second"},
		{SessionID: "b", Created: time.Unix(1, 0), Prompt: "other"},
		{SessionID: "a", Created: time.Unix(1, 0), Prompt: "first"},
	} {
		if err := cloud.RecordGeneration(generation); err != nil {
			t.Fatal(err)
		}
	}

	generations, err := cloud.Generations("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(generations) != 2 || generations[0].Prompt != "first" || generations[1].Prompt != "second" {
		t.Errorf("unexpected %+v", generations)
	}
	if generations, _ = cloud.Generations("missing"); len(generations) != 0 {
		t.Errorf("unexpected %+v", generations)
	}
}
