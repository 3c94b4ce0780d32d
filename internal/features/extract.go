/**
 * Feature Extractor.
 *
 * Pure function deriving a typed FeatureMap from a PacketRecord's
 * decoded header layers, narrowed to the closed feature set and
 * written to never fail: malformed or absent layers simply leave keys
 * missing rather than raising.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package features

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kleaSCM/sentryd/internal/models"
)

// Extract derives a FeatureMap from the packet's raw bytes. It never
// panics or returns an error: a packet gopacket cannot decode yields an
// empty map.
func Extract(rec *models.PacketRecord) models.FeatureMap {
	fm := models.FeatureMap{}
	if rec == nil || len(rec.Raw) == 0 {
		return fm
	}

	packet := gopacket.NewPacket(rec.Raw, layers.LayerTypeEthernet, gopacket.NoCopy)
	if packet == nil {
		return fm
	}
	defer func() { recover() }() // decoding malformed bytes must never fail the pipeline

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip, _ := ipLayer.(*layers.IPv4)
		if ip != nil {
			fm[models.FeatureIPLen] = models.IntValue(int64(ip.Length))
			fm[models.FeatureIPTTL] = models.IntValue(int64(ip.TTL))
			fm[models.FeatureIPProto] = models.IntValue(int64(ip.Protocol))
		}
	} else if ipLayer := packet.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		ip, _ := ipLayer.(*layers.IPv6)
		if ip != nil {
			fm[models.FeatureIPLen] = models.IntValue(int64(ip.Length))
			fm[models.FeatureIPTTL] = models.IntValue(int64(ip.HopLimit))
			fm[models.FeatureIPProto] = models.IntValue(int64(ip.NextHeader))
		}
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		if tcp != nil {
			fm[models.FeatureTCPSport] = models.IntValue(int64(tcp.SrcPort))
			fm[models.FeatureTCPDport] = models.IntValue(int64(tcp.DstPort))
			fm[models.FeatureTCPFlags] = models.IntValue(int64(tcpFlagsByte(tcp)))
			fm[models.FeatureTCPWin] = models.IntValue(int64(tcp.Window))
		}
	}

	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		if udp != nil {
			fm[models.FeatureUDPSport] = models.IntValue(int64(udp.SrcPort))
			fm[models.FeatureUDPDport] = models.IntValue(int64(udp.DstPort))
			fm[models.FeatureUDPLen] = models.IntValue(int64(udp.Length))
		}
	}

	return fm
}

// tcpFlagsByte packs gopacket's exploded boolean TCP flag fields back
// into the raw 8-bit flags value rule conditions compare against.
func tcpFlagsByte(tcp *layers.TCP) uint8 {
	var flags uint8
	if tcp.FIN {
		flags |= 0x01
	}
	if tcp.SYN {
		flags |= 0x02
	}
	if tcp.RST {
		flags |= 0x04
	}
	if tcp.PSH {
		flags |= 0x08
	}
	if tcp.ACK {
		flags |= 0x10
	}
	if tcp.URG {
		flags |= 0x20
	}
	if tcp.ECE {
		flags |= 0x40
	}
	if tcp.CWR {
		flags |= 0x80
	}
	return flags
}
