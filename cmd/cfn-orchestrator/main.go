// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Command cfn-orchestrator submits one epic run to a running Temporal
// worker: it reads an EpicConfig document from disk, starts EpicWorkflow,
// and blocks until the epic reaches a terminal status, printing the
// result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"cfnloop/internal/config"
	"cfnloop/pkg/cfntypes"
	"cfnloop/pkg/epic"
)

const taskQueue = "cfn-loop-task-queue"

func main() {
	configPath := flag.String("config", "", "path to an EpicConfig YAML document")
	coordinatorID := flag.String("coordinator", "", "coordinator ID attached to this run (default: a generated cfn-cli-<uuid>)")
	flag.Parse()

	if *configPath == "" {
		log.Fatalln("-config is required")
	}

	if *coordinatorID == "" {
		generated := "cfn-cli-" + uuid.NewString()
		coordinatorID = &generated
	}

	ec, err := config.LoadEpicConfig(*configPath)
	if err != nil {
		log.Fatalln(err)
	}

	c, err := client.Dial(client.Options{HostPort: client.DefaultHostPort})
	if err != nil {
		log.Fatalln("unable to create temporal client:", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), ec.Policy.GlobalTimeout+time.Minute)
	defer cancel()

	options := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("epic-%s", ec.Epic.ID),
		TaskQueue: taskQueue,
	}

	input := epic.EpicInput{
		CoordinatorID: *coordinatorID,
		Epic:          ec.Epic,
		Policy:        ec.Policy,
	}

	run, err := c.ExecuteWorkflow(ctx, options, epic.EpicWorkflow, input)
	if err != nil {
		log.Fatalln("unable to start epic workflow:", err)
	}

	log.Printf("epic workflow started workflowId=%s runId=%s", run.GetID(), run.GetRunID())

	var result epic.EpicResult
	if err := run.Get(ctx, &result); err != nil {
		log.Fatalln("epic workflow failed:", err)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalln("unable to encode result:", err)
	}
	fmt.Println(string(encoded))

	if result.Status != cfntypes.StatusComplete {
		os.Exit(1)
	}
}
