package main

import (
	"context"
	"log"
	"os"

	"dealflow/activity"
	"dealflow/checklist"
	"dealflow/db"
	"dealflow/document"
	"dealflow/identity"
	"dealflow/listing"
	"dealflow/message"
	"dealflow/pipeline"
	"dealflow/progress"
	"dealflow/questionnaire"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	recorder := activity.NewRecorder()

	listingRepo := listing.NewRepository(pool)
	listingService := listing.NewService(pool, listingRepo, recorder)

	documentRepo := document.NewRepository(pool)
	documentService := document.NewService(pool, documentRepo, listingRepo, recorder)

	sellerTracker := progress.NewTracker(pool, progress.NewSellerRepository(pool), listingRepo, pipeline.DefaultSellerSteps().FinalStep())
	buyerTracker := progress.NewTracker(pool, progress.NewBuyerRepository(pool), listingRepo, pipeline.DefaultBuyerSteps().FinalStep())

	checklistService := checklist.NewService(pool, checklist.NewRepository(pool), listingRepo, recorder)

	pipelineService := pipeline.NewService(pool, documentRepo, listingRepo, checklistService, recorder,
		pipeline.Track{Tracker: sellerTracker, Config: pipeline.DefaultSellerSteps()},
		pipeline.Track{Tracker: buyerTracker, Config: pipeline.DefaultBuyerSteps()},
	)

	identityService := identity.NewService(identity.NewRepository(pool), jwtSecret)
	messageService := message.NewService(pool, message.NewRepository(pool), listingRepo, recorder)
	questionnaireService := questionnaire.NewService(pool, questionnaire.NewRepository(pool), documentRepo, listingRepo)

	log.Printf("dealflow core ready: listing=%t document=%t pipeline=%t identity=%t message=%t questionnaire=%t",
		listingService != nil,
		documentService != nil,
		pipelineService != nil,
		identityService != nil,
		messageService != nil,
		questionnaireService != nil,
	)
}
