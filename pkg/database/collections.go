package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const BusPositionsCollection = "bus_positions"

func createIndexes() {
	createBusPositionIndexes()
}

func createBusPositionIndexes() {
	busPositionsCollection := GetCollection(BusPositionsCollection)
	busPositionsIndex := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "buskey", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "routeid", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "location.coordinates", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "modificationdatetime", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := busPositionsCollection.Indexes().CreateMany(context.Background(), busPositionsIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
