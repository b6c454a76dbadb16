package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/util"
	"github.com/deemkeen/mammut/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	database, err := db.New(util.ResolveFilePath(conf.Conf.DbFile))
	if err != nil {
		log.Fatalln(err)
	}
	defer database.Close()

	iris := activitypub.IRIs{Domain: conf.Conf.SslDomain}
	deliverer := &activitypub.FederatedDelivery{
		Store: database,
		Queue: database,
		IRIs:  iris,
	}
	svc := &activitypub.Service{
		Store:   database,
		Deliver: deliverer,
		Notify:  activitypub.LogNotifier{},
		IRIs:    iris,
	}

	// mammut adduser <name> creates a local actor and exits
	if len(os.Args) > 2 && os.Args[1] == "adduser" {
		if conf.Conf.Closed {
			log.Fatalln("This instance is closed, no new actors can be created")
		}
		name := util.NormalizeInput(os.Args[2])
		actor, err := svc.CreateActor(context.Background(), name, name, "")
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("Created actor %s", actor.ID)
		return
	}

	log.Println(util.GetNameAndVersion())

	activitypub.StartDeliveryWorker(deliverer)

	log.Fatalln(web.Router(conf, svc))
}
