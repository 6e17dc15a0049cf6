/*
 * Copyright 2026 Ornatel S.r.l.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metricstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Telemetry metric paths inside the diagnostics documents.
const (
	fieldSOC           = "payload.metrics.EGM_OUT_SENS_23_VAR_3_value.value"
	fieldChannel       = "payload.metrics.EGM_OUT_SENS_23_VAR_7_value.value"
	fieldSignalPrimary = "payload.metrics.SENS_Digil2_LtePowerSignal.value"
	fieldSignalAlt     = "payload.metrics.EGM_OUT_SENS_23_VAR_14_value.value"

	dayFormat  = "%Y-%m-%d"
	hourFormat = "%Y-%m-%d %H:00"

	// Charge drift smaller than this between the oldest and newest day
	// is reported as flat.
	trendDeadband = 2
)

// Trend arrows for the daily charge series.
const (
	TrendUp   = "↑"
	TrendDown = "↓"
	TrendFlat = "→"
)

// SOCHistory is a daily state-of-charge series, newest bucket first.
type SOCHistory struct {
	DeviceID string
	// Daily maps "YYYY-MM-DD" to the last charge reading of that day.
	Daily map[string]int
	Avg   *float64
	Min   *int
	Max   *int
	Trend string
}

// ChannelHistory is an hourly access-channel series.
type ChannelHistory struct {
	DeviceID string
	// Hourly maps "YYYY-MM-DD HH:00" to the channel used that hour.
	Hourly     map[string]string
	Channels   []string
	LTECount   int
	NBIoTCount int
	LoRaCount  int
}

// SignalHistory is an hourly signal-strength series in dBm.
type SignalHistory struct {
	DeviceID string
	Hourly   map[string]int
	Avg      *float64
	Min      *int
	Max      *int
}

// SOCHistory returns one charge value per day over the last `days` days.
func (s *Store) SOCHistory(ctx context.Context, deviceID string, days int) (*SOCHistory, error) {
	startMs, endMs := s.window(time.Duration(days) * 24 * time.Hour)

	docs, err := s.aggregate(ctx, bucketPipeline(deviceID, startMs, endMs, fieldSOC, dayFormat))
	if err != nil {
		return nil, fmt.Errorf("charge history for %s: %w", deviceID, err)
	}

	history := &SOCHistory{DeviceID: deviceID, Daily: make(map[string]int, len(docs))}

	var values []int

	for _, doc := range docs {
		day, _ := doc["_id"].(string)

		v, ok := asInt64(doc["value"])
		if day == "" || !ok {
			continue
		}

		soc := int(v)
		history.Daily[day] = soc
		values = append(values, soc)
	}

	if len(values) > 0 {
		history.Avg = averageOf(values)
		history.Min, history.Max = minMaxOf(values)
		history.Trend = socTrend(values)
	}

	return history, nil
}

// ChannelHistory returns one access-channel value per hour over the last
// `hours` hours.
func (s *Store) ChannelHistory(ctx context.Context, deviceID string, hours int) (*ChannelHistory, error) {
	startMs, endMs := s.window(time.Duration(hours) * time.Hour)

	docs, err := s.aggregate(ctx, bucketPipeline(deviceID, startMs, endMs, fieldChannel, hourFormat))
	if err != nil {
		return nil, fmt.Errorf("channel history for %s: %w", deviceID, err)
	}

	history := &ChannelHistory{DeviceID: deviceID, Hourly: make(map[string]string, len(docs))}
	seen := make(map[string]struct{})

	for _, doc := range docs {
		hour, _ := doc["_id"].(string)
		if hour == "" || doc["value"] == nil {
			continue
		}

		channel := strings.ToUpper(strings.TrimSpace(fmt.Sprintf("%v", doc["value"])))
		history.Hourly[hour] = channel
		seen[channel] = struct{}{}

		switch classifyChannel(channel) {
		case channelLTE:
			history.LTECount++
		case channelNBIoT:
			history.NBIoTCount++
		case channelLoRa:
			history.LoRaCount++
		}
	}

	for channel := range seen {
		history.Channels = append(history.Channels, channel)
	}

	sort.Strings(history.Channels)

	return history, nil
}

// SignalHistory returns one signal reading per hour over the last
// `hours` hours, preferring the LTE metric and falling back to the
// alternate radio metric per document.
func (s *Store) SignalHistory(ctx context.Context, deviceID string, hours int) (*SignalHistory, error) {
	startMs, endMs := s.window(time.Duration(hours) * time.Hour)

	docs, err := s.aggregate(ctx, signalPipeline(deviceID, startMs, endMs))
	if err != nil {
		return nil, fmt.Errorf("signal history for %s: %w", deviceID, err)
	}

	history := &SignalHistory{DeviceID: deviceID, Hourly: make(map[string]int, len(docs))}

	var values []int

	for _, doc := range docs {
		hour, _ := doc["_id"].(string)

		v, ok := asInt64(doc["value"])
		if hour == "" || !ok {
			continue
		}

		dbm := int(v)
		history.Hourly[hour] = dbm
		values = append(values, dbm)
	}

	if len(values) > 0 {
		history.Avg = averageOf(values)
		history.Min, history.Max = minMaxOf(values)
	}

	return history, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	cursor, err := s.diags.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var docs []bson.M

	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	return docs, nil
}

// bucketPipeline groups one metric into date-string buckets, keeping the
// last reading of each bucket, newest bucket first.
func bucketPipeline(deviceID string, startMs, endMs int64, field, format string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: fieldClientID, Value: deviceID},
			{Key: fieldTimestamp, Value: bson.D{
				{Key: "$gte", Value: startMs},
				{Key: "$lte", Value: endMs},
			}},
			{Key: field, Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "bucket", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: format},
				{Key: "date", Value: bson.D{{Key: "$toDate", Value: "$" + fieldTimestamp}}},
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: fieldTimestamp, Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$bucket"},
			{Key: "value", Value: bson.D{{Key: "$first", Value: "$" + field}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
	}
}

// signalPipeline is bucketPipeline with a per-document fallback between
// the two possible signal metrics.
func signalPipeline(deviceID string, startMs, endMs int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: fieldClientID, Value: deviceID},
			{Key: fieldTimestamp, Value: bson.D{
				{Key: "$gte", Value: startMs},
				{Key: "$lte", Value: endMs},
			}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: fieldSignalPrimary, Value: bson.D{{Key: "$exists", Value: true}}}},
				bson.D{{Key: fieldSignalAlt, Value: bson.D{{Key: "$exists", Value: true}}}},
			}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "bucket", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: hourFormat},
				{Key: "date", Value: bson.D{{Key: "$toDate", Value: "$" + fieldTimestamp}}},
			}}}},
			{Key: "signal", Value: bson.D{{Key: "$ifNull", Value: bson.A{
				"$" + fieldSignalPrimary,
				"$" + fieldSignalAlt,
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: fieldTimestamp, Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$bucket"},
			{Key: "value", Value: bson.D{{Key: "$first", Value: "$signal"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
	}
}

type channelKind int

const (
	channelOther channelKind = iota
	channelLTE
	channelNBIoT
	channelLoRa
)

func classifyChannel(channel string) channelKind {
	switch {
	case strings.Contains(channel, "LTE"):
		return channelLTE
	case strings.Contains(channel, "NBIOT"),
		strings.Contains(channel, "NB-IOT"),
		strings.Contains(channel, "NB_IOT"):
		return channelNBIoT
	case strings.Contains(channel, "LORA"):
		return channelLoRa
	default:
		return channelOther
	}
}

// socTrend compares the newest and oldest reading of a series ordered
// newest first.
func socTrend(values []int) string {
	if len(values) < 2 {
		return TrendFlat
	}

	diff := values[0] - values[len(values)-1]

	switch {
	case diff > trendDeadband:
		return TrendUp
	case diff < -trendDeadband:
		return TrendDown
	default:
		return TrendFlat
	}
}

func averageOf(values []int) *float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}

	avg := math.Round(float64(sum)/float64(len(values))*10) / 10

	return &avg
}

func minMaxOf(values []int) (minVal, maxVal *int) {
	lo, hi := values[0], values[0]

	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}

		if v > hi {
			hi = v
		}
	}

	return &lo, &hi
}

// asInt64 coerces the numeric types the driver may hand back for a
// metric value.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}

		return int64(f), true
	default:
		return 0, false
	}
}
