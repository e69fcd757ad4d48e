package protocol

import (
	"encoding/xml"

	"github.com/arencloud/stratus/internal/models"
	"github.com/google/uuid"
)

const rdsXmlns = "http://rds.amazonaws.com/doc/2014-10-31/"

// instanceClass is the only class the emulator reports; sizing is not modeled.
const instanceClass = "db.t3.micro"

type Endpoint struct {
	Address string `xml:"Address"`
	Port    int    `xml:"Port"`
}

type DBInstanceXML struct {
	DBInstanceIdentifier string    `xml:"DBInstanceIdentifier"`
	DBInstanceClass      string    `xml:"DBInstanceClass,omitempty"`
	Engine               string    `xml:"Engine,omitempty"`
	DBInstanceStatus     string    `xml:"DBInstanceStatus"`
	MasterUsername       string    `xml:"MasterUsername,omitempty"`
	DBName               string    `xml:"DBName,omitempty"`
	Endpoint             *Endpoint `xml:"Endpoint,omitempty"`
}

type ResponseMetadata struct {
	RequestID string `xml:"RequestId"`
}

type CreateDBInstanceResult struct {
	DBInstance DBInstanceXML `xml:"DBInstance"`
}

type CreateDBInstanceResponse struct {
	XMLName  xml.Name               `xml:"CreateDBInstanceResponse"`
	Xmlns    string                 `xml:"xmlns,attr"`
	Result   CreateDBInstanceResult `xml:"CreateDBInstanceResult"`
	Metadata ResponseMetadata       `xml:"ResponseMetadata"`
}

type DescribeDBInstancesResult struct {
	DBInstances []DBInstanceXML `xml:"DBInstances>DBInstance"`
}

type DescribeDBInstancesResponse struct {
	XMLName  xml.Name                  `xml:"DescribeDBInstancesResponse"`
	Xmlns    string                    `xml:"xmlns,attr"`
	Result   DescribeDBInstancesResult `xml:"DescribeDBInstancesResult"`
	Metadata ResponseMetadata          `xml:"ResponseMetadata"`
}

type DeleteDBInstanceResult struct {
	DBInstance DBInstanceXML `xml:"DBInstance"`
}

type DeleteDBInstanceResponse struct {
	XMLName  xml.Name               `xml:"DeleteDBInstanceResponse"`
	Xmlns    string                 `xml:"xmlns,attr"`
	Result   DeleteDBInstanceResult `xml:"DeleteDBInstanceResult"`
	Metadata ResponseMetadata       `xml:"ResponseMetadata"`
}

func instanceXML(inst *models.DBInstance) DBInstanceXML {
	return DBInstanceXML{
		DBInstanceIdentifier: inst.ID,
		DBInstanceClass:      instanceClass,
		Engine:               inst.Engine,
		DBInstanceStatus:     inst.Status,
		MasterUsername:       inst.MasterUsername,
		DBName:               inst.DBName,
		Endpoint:             &Endpoint{Address: "localhost", Port: inst.Port},
	}
}

func metadata() ResponseMetadata { return ResponseMetadata{RequestID: uuid.NewString()} }

func NewCreateDBInstanceResponse(inst *models.DBInstance) CreateDBInstanceResponse {
	return CreateDBInstanceResponse{
		Xmlns:    rdsXmlns,
		Result:   CreateDBInstanceResult{DBInstance: instanceXML(inst)},
		Metadata: metadata(),
	}
}

func NewDescribeDBInstancesResponse(instances []models.DBInstance) DescribeDBInstancesResponse {
	out := DescribeDBInstancesResponse{Xmlns: rdsXmlns, Metadata: metadata()}
	for i := range instances {
		x := instanceXML(&instances[i])
		// describe omits credentials-adjacent fields, matching the provider
		x.MasterUsername = ""
		x.DBName = ""
		out.Result.DBInstances = append(out.Result.DBInstances, x)
	}
	return out
}

func NewDeleteDBInstanceResponse(inst *models.DBInstance) DeleteDBInstanceResponse {
	return DeleteDBInstanceResponse{
		Xmlns: rdsXmlns,
		Result: DeleteDBInstanceResult{DBInstance: DBInstanceXML{
			DBInstanceIdentifier: inst.ID,
			DBInstanceStatus:     models.StatusDeleted,
		}},
		Metadata: metadata(),
	}
}
