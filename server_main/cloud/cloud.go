// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SoftbearStudios/cartograph/server"
	"github.com/SoftbearStudios/cartograph/server_main/cloud/db"
	"github.com/SoftbearStudios/cartograph/server_main/cloud/fs"
)

const (
	UpdatePeriod = 30 * time.Second

	// How long generation records are kept.
	generationTTL = 30 * 24 * time.Hour
)

// Cloud stores artifacts in S3 and records in DynamoDB.
type Cloud struct {
	region     string
	serverSlot int
	ip         net.IP
	database   db.Database
	fs         fs.Filesystem
}

var _ server.Cloud = (*Cloud)(nil)

func (cloud *Cloud) String() string {
	var builder strings.Builder
	builder.WriteByte('[')
	builder.WriteString(cloud.region)
	builder.WriteByte(' ')
	builder.WriteString(strconv.Itoa(cloud.serverSlot))
	builder.WriteByte(' ')
	builder.WriteString(cloud.ip.String())
	builder.WriteByte(']')
	return builder.String()
}

// New connects to AWS using the instance's user data. It fails off EC2.
func New() (*Cloud, error) {
	cloud := &Cloud{}

	userData, err := loadUserData()
	if err != nil {
		return nil, err
	}

	cloud.region = userData.Region

	cloud.ip, err = getPublicIP()
	if err != nil {
		return nil, err
	}
	session, err := getAWSSession(cloud.region)
	if err != nil {
		return nil, err
	}

	cloud.database, err = db.NewDynamoDBDatabase(session, userData.Stage)
	if err != nil {
		return nil, err
	}
	cloud.fs, err = fs.NewS3Filesystem(session, userData.Stage)
	if err != nil {
		return nil, err
	}

	servers, err := cloud.database.ReadServersByRegion(cloud.region)
	if err != nil {
		return nil, err
	}

	cloud.serverSlot = allocateSlot(servers, cloud.ip, userData.ServerSlots)
	if cloud.serverSlot == -1 {
		return nil, errors.New("no empty server slot")
	}

	err = cloud.UpdateServer(0)
	if err != nil {
		return nil, err
	}

	return cloud, nil
}

// allocateSlot reclaims ip's old slot, or else takes the first free one.
// Returns -1 if all are taken.
func allocateSlot(servers []db.Server, ip net.IP, slots int) int {
	for _, server := range servers {
		if ip.Equal(server.IP) {
			return server.Slot
		}
	}

scan:
	for slot := 0; slot < slots; slot++ {
		for _, server := range servers {
			if server.Slot == slot {
				// Slot is taken
				continue scan
			}
		}
		return slot
	}
	return -1
}

// UpdateServer must be called at least every UpdatePeriod.
func (cloud *Cloud) UpdateServer(sessions int) error {
	return cloud.database.UpdateServer(db.Server{
		Region:   cloud.region,
		Slot:     cloud.serverSlot,
		IP:       cloud.ip,
		Sessions: sessions,
		TTL:      time.Now().Unix() + int64(UpdatePeriod/time.Second) + 5,
	})
}

func (cloud *Cloud) UploadArtifact(key string, data []byte) error {
	return cloud.fs.UploadArtifact(key, data)
}

func (cloud *Cloud) RecordGeneration(generation server.Generation) error {
	return cloud.database.PutGeneration(generationRecord(generation))
}

func (cloud *Cloud) Generations(sessionID string) ([]server.Generation, error) {
	records, err := cloud.database.ReadGenerationsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	generations := make([]server.Generation, len(records))
	for i, record := range records {
		generations[i] = generationFromRecord(record)
	}
	sort.Slice(generations, func(i, j int) bool {
		return generations[i].Created.Before(generations[j].Created)
	})
	return generations, nil
}

func (cloud *Cloud) UpdatePeriod() time.Duration {
	return UpdatePeriod
}

func generationRecord(generation server.Generation) db.Generation {
	return db.Generation{
		SessionID: generation.SessionID,
		Created:   generation.Created.UnixNano() / int64(time.Millisecond),
		Duration:  generation.Duration.Seconds(),
		Prompt:    generation.Prompt,
		Width:     generation.Width,
		Height:    generation.Height,
		Outcome:   generation.Outcome,
		Reason:    generation.Reason,
		Error:     generation.Error,
		GuideKey:  generation.GuideKey,
		PaintKey:  generation.PaintKey,
		FinalKey:  generation.FinalKey,
		TTL:       generation.Created.Add(generationTTL).Unix(),
	}
}

func generationFromRecord(record db.Generation) server.Generation {
	return server.Generation{
		SessionID: record.SessionID,
		Created:   time.Unix(0, record.Created*int64(time.Millisecond)),
		Duration:  time.Duration(record.Duration * float64(time.Second)),
		Prompt:    record.Prompt,
		Width:     record.Width,
		Height:    record.Height,
		Outcome:   record.Outcome,
		Reason:    record.Reason,
		Error:     record.Error,
		GuideKey:  record.GuideKey,
		PaintKey:  record.PaintKey,
		FinalKey:  record.FinalKey,
	}
}
